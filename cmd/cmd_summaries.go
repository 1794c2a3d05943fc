// cmd_summaries.go - Runs und Skalare anzeigen
// Hauptfunktionen: SummariesHandler, newSummariesCmd
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/aegan/api"
	"github.com/ollama/aegan/summary"
)

func renderTable(header []string, data [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func runRows(runs []api.Run) [][]string {
	var data [][]string
	for _, r := range runs {
		data = append(data, []string{
			r.ID,
			r.Name,
			strconv.Itoa(r.Scalars),
			strconv.Itoa(r.LastStep),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return data
}

func pointRows(points []api.Point) [][]string {
	var data [][]string
	for _, p := range points {
		data = append(data, []string{
			strconv.Itoa(p.Step),
			strconv.FormatFloat(p.Value, 'f', 6, 64),
			p.Time.Local().Format(time.DateTime),
		})
	}
	return data
}

// localSummaries liest direkt aus AEGAN_SUMMARY_DB in API-Typen
type localSummaries struct {
	store *summary.Store
}

func (l localSummaries) runs() ([]api.Run, error) {
	runs, err := l.store.Runs()
	if err != nil {
		return nil, err
	}
	out := make([]api.Run, len(runs))
	for i, r := range runs {
		out[i] = api.Run{ID: r.ID, Name: r.Name, Config: r.Config, CreatedAt: r.CreatedAt, Scalars: r.Scalars, LastStep: r.LastStep}
	}
	return out, nil
}

func (l localSummaries) scalars(run, tag string) (*api.ScalarsResponse, error) {
	if _, err := l.store.Run(run); err != nil {
		return nil, err
	}
	tags, err := l.store.Tags(run)
	if err != nil {
		return nil, err
	}
	resp := &api.ScalarsResponse{Run: run, Tag: tag, Tags: tags}
	if tag == "" {
		return resp, nil
	}

	points, err := l.store.Scalars(run, tag)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		resp.Points = append(resp.Points, api.Point{Step: p.Step, Value: p.Value, Time: p.Time})
	}
	return resp, nil
}

// SummariesHandler - Listet Runs oder die Skalare eines Runs
func SummariesHandler(cmd *cobra.Command, args []string) error {
	tag, _ := cmd.Flags().GetString("tag")
	remote, _ := cmd.Flags().GetBool("remote")

	var client *api.Client
	var local localSummaries
	if remote {
		var err error
		if client, err = api.ClientFromEnvironment(); err != nil {
			return err
		}
	} else {
		local.store = &summary.Store{}
		defer local.store.Close()
	}

	if len(args) == 0 {
		var runs []api.Run
		if remote {
			resp, err := client.Runs(cmd.Context())
			if err != nil {
				return err
			}
			runs = resp.Runs
		} else {
			var err error
			if runs, err = local.runs(); err != nil {
				return err
			}
		}

		renderTable([]string{"ID", "NAME", "SCALARS", "LAST STEP", "CREATED"}, runRows(runs))
		return nil
	}

	var resp *api.ScalarsResponse
	var err error
	if remote {
		resp, err = client.Scalars(cmd.Context(), args[0], tag)
	} else {
		resp, err = local.scalars(args[0], tag)
	}
	if err != nil {
		return err
	}

	if tag == "" {
		for _, t := range resp.Tags {
			fmt.Println(t)
		}
		return nil
	}

	renderTable([]string{"STEP", "VALUE", "TIME"}, pointRows(resp.Points))
	return nil
}

// newSummariesCmd - Erstellt den summaries Command
func newSummariesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "summaries [RUN]",
		Aliases: []string{"runs"},
		Short:   "List recorded runs, the tags of a run, or one tag's values",
		Args:    cobra.MaximumNArgs(1),
		RunE:    SummariesHandler,
	}

	c.Flags().String("tag", "", "Show the values of TAG")
	c.Flags().Bool("remote", false, "Read from the running server instead of the local database")

	return c
}
