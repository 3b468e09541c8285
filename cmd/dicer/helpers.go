package main

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var usdPrinter = message.NewPrinter(language.English)

// formatUSD renders a spend amount with the dollar symbol and grouping.
func formatUSD(amount float64) string {
	return usdPrinter.Sprintf("%v", currency.NarrowSymbol(currency.USD.Amount(amount)))
}

func printJSON(out io.Writer, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}
