package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"liquidnet/catalog"
	"liquidnet/journal"
	"liquidnet/packet"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the packet journal",
}

var journalDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print journal entries in append order",
	Long: `Print journal entries in append order.

Examples:
  liquidnet journal dump --path ./journal
  liquidnet journal dump --path ./journal --since 15m --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		since, _ := cmd.Flags().GetDuration("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		cat, err := catalog.New()
		if err != nil {
			return err
		}
		j, err := journal.Open(path, journal.Options{})
		if err != nil {
			return err
		}
		defer j.Close()

		var start time.Time
		if since > 0 {
			start = time.Now().Add(-since)
		}
		return dumpJournal(cmd.OutOrStdout(), j, cat, start, asJSON)
	},
}

func init() {
	journalDumpCmd.Flags().String("path", "journal", "journal directory")
	journalDumpCmd.Flags().Duration("since", 0, "only entries newer than this")
	journalDumpCmd.Flags().Bool("json", false, "print one JSON object per line")
	journalCmd.AddCommand(journalDumpCmd)
}

type dumpedEntry struct {
	ID      string        `json:"id"`
	Time    time.Time     `json:"time"`
	Session string        `json:"session"`
	Seq     uint32        `json:"seq"`
	Packet  string        `json:"packet"`
	Body    packet.Packet `json:"body,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func dumpJournal(w io.Writer, j *journal.Journal, cat *packet.Catalog, since time.Time, asJSON bool) error {
	var entries []dumpedEntry
	collect := func(e *journal.Entry) error {
		d := dumpedEntry{
			ID:      e.ID.String(),
			Time:    e.Time(),
			Session: e.Session,
			Seq:     e.Seq,
			Packet:  fmt.Sprintf("%s:%d", e.Bound, e.PacketID),
		}
		if t, ok := cat.Lookup(e.Bound, e.PacketID); ok {
			d.Packet += " " + t.Name()
		}
		if p, err := e.Packet(cat); err == nil {
			d.Body = p
		}
		if e.Error != nil {
			d.Error = *e.Error
		}
		entries = append(entries, d)
		return nil
	}

	var err error
	if since.IsZero() {
		err = j.Scan(collect)
	} else {
		err = j.ScanSince(since, collect)
	}
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		for _, d := range entries {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tSEQ\tPACKET\tERROR")
	for _, d := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.Time.Format(time.RFC3339), d.Session, d.Seq, d.Packet, d.Error)
	}
	return tw.Flush()
}
