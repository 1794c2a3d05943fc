// cmd_metric.go - MS-SSIM zwischen zwei Bildern
// Hauptfunktionen: MSSSIMHandler, newMSSSIMCmd
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ollama/aegan/api"
	"github.com/ollama/aegan/dataset"
	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/msssim"
)

// MSSSIMHandler - Berechnet MS-SSIM lokal oder ueber den Server
func MSSSIMHandler(cmd *cobra.Command, args []string) error {
	size, err := cmd.Flags().GetInt("size")
	if err != nil {
		return err
	}

	a, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	b, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}
		resp, err := client.MSSSIM(cmd.Context(), &api.MSSSIMRequest{A: a, B: b, Size: size})
		if err != nil {
			return err
		}
		fmt.Printf("%.6f\n", resp.MSSSIM)
		return nil
	}

	x, err := dataset.DecodeTensor(a, size)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	y, err := dataset.DecodeTensor(b, size)
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}
	if err := ml.SameShape("msssim", x, y); err != nil {
		return fmt.Errorf("%w (use --size)", err)
	}

	v, err := msssim.Accuracy(cmd.Context(), x, y, msssim.DefaultOptions())
	if err != nil {
		return err
	}

	fmt.Printf("%.6f\n", v)
	return nil
}

// newMSSSIMCmd - Erstellt den msssim Command
func newMSSSIMCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "msssim IMAGE_A IMAGE_B",
		Short: "Compute MS-SSIM between two images",
		Args:  cobra.ExactArgs(2),
		RunE:  MSSSIMHandler,
	}

	c.Flags().Int("size", 0, "Resize both images to SIZE x SIZE before comparing")
	c.Flags().Bool("remote", false, "Compute on the running server instead of locally")

	return c
}
