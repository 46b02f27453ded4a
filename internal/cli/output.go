package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

func printResult(w io.Writer, format string, res *Result) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "status:  %d (%s)\n", res.Status, res.Outcome)
	fmt.Fprintf(w, "message: %s\n", res.Message)
	if t := res.Token; t != nil {
		fmt.Fprintf(w, "token:   %s\n", t.TokenID)
		fmt.Fprintf(w, "user:    %d\n", t.UserID)
		fmt.Fprintf(w, "usages:  %d remaining\n", t.RemainingUsages)
		fmt.Fprintf(w, "expires: %s\n", t.ExpiryDate.UTC().Format(time.RFC3339))
	}
	return nil
}
