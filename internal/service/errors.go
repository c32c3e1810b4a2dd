package service

import "errors"

var (
	ErrNotFound           = errors.New("error not found")
	ErrInvalidArgument    = errors.New("error invalid argument")
	ErrInsufficientShares = errors.New("not enough shares to sell")
)
