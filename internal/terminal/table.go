// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package terminal

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/autobrr/keydesk/internal/admin"
)

// RenderKeyTable writes the key list as aligned columns
func RenderKeyTable(w io.Writer, table admin.Table) error {
	if table.Empty {
		_, err := fmt.Fprintln(w, table.EmptyMessage)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CUSTOMER\tLICENSE KEY\tTYPE\tCREATED\tEXPIRES\tACTIVATIONS\tSTATUS\tHASH")
	for _, row := range table.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.CustomerName,
			row.Key,
			row.KeyType,
			row.Created,
			row.Expires,
			row.Activations,
			row.Status,
			row.KeyHash,
		)
	}
	return tw.Flush()
}

// RenderVerify writes a verification verdict
func RenderVerify(w io.Writer, view admin.VerifyView) {
	fmt.Fprintln(w, view.Title)
	if !view.Valid {
		if view.Message != "" {
			fmt.Fprintln(w, view.Message)
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Customer:\t%s\n", view.CustomerName)
	fmt.Fprintf(tw, "Type:\t%s\n", view.KeyType)
	fmt.Fprintf(tw, "Expires:\t%s\n", view.Expires)
	fmt.Fprintf(tw, "Activations:\t%s\n", view.Activations)
	_ = tw.Flush()
}
