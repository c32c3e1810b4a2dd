package xlsxGenerator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"stocktracker/internal/model"
	"stocktracker/utils"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate builds an xlsx report with the valued positions and the full
// transaction history of one portfolio.
func (g *XLSXGenerator) Generate(ctx context.Context, detail model.PortfolioDetail, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err := g.fillPositionsSheet(f, detail); err != nil {
		return nil, "", err
	}

	if err := g.fillTransactionsSheet(f, transactions); err != nil {
		return nil, "", err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillPositionsSheet(f *excelize.File, detail model.PortfolioDetail) error {
	sheetName := "Positions"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	if err := f.MergeCell(sheetName, "A1", "H1"); err != nil {
		return err
	}
	f.SetCellValue(sheetName, "A1", detail.Name)

	styleID, err := headerStyle(f, "#cfe2f3")
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", styleID); err != nil {
		return err
	}

	_ = f.SetCellStr(sheetName, "A2", "symbol")
	_ = f.SetCellStr(sheetName, "B2", "shares")
	_ = f.SetCellStr(sheetName, "C2", "avg price")
	_ = f.SetCellStr(sheetName, "D2", "current price")
	_ = f.SetCellStr(sheetName, "E2", "current value")
	_ = f.SetCellStr(sheetName, "F2", "cost basis")
	_ = f.SetCellStr(sheetName, "G2", "gain/loss")
	_ = f.SetCellStr(sheetName, "H2", "gain/loss %")

	for i, position := range detail.Positions {
		row := i + 3
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), position.Symbol)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), position.Shares.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), position.AvgPrice.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), position.CurrentPrice.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), position.CurrentValue.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), position.CostBasis.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), position.GainLoss.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), position.GainLossPercent.InexactFloat64())
	}

	totalsRow := len(detail.Positions) + 4
	_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", totalsRow), "total")
	_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", totalsRow), detail.Summary.TotalValue.InexactFloat64())
	_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", totalsRow), detail.Summary.TotalCostBasis.InexactFloat64())
	_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", totalsRow), detail.Summary.TotalGainLoss.InexactFloat64())
	_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", totalsRow), detail.Summary.TotalGainLossPercent.InexactFloat64())

	return nil
}

func (g *XLSXGenerator) fillTransactionsSheet(f *excelize.File, transactions []model.Transaction) error {
	sheetName := "Transaction History"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	if err := f.MergeCell(sheetName, "A1", "F1"); err != nil {
		return err
	}
	f.SetCellValue(sheetName, "A1", "Transaction History")

	styleID, err := headerStyle(f, "#d9ead3")
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", styleID); err != nil {
		return err
	}

	_ = f.SetCellStr(sheetName, "A2", "date")
	_ = f.SetCellStr(sheetName, "B2", "symbol")
	_ = f.SetCellStr(sheetName, "C2", "type")
	_ = f.SetCellStr(sheetName, "D2", "shares")
	_ = f.SetCellStr(sheetName, "E2", "price")
	_ = f.SetCellStr(sheetName, "F2", "total")

	for i, transaction := range transactions {
		row := i + 3
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), transaction.Date)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", row), transaction.Symbol)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", row), transaction.Type)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), transaction.Shares.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), transaction.Price.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), transaction.Price.Mul(transaction.Shares).InexactFloat64())
	}

	return nil
}

func headerStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
}
