// cmd_analyze.go - Ein Bild durch die Referenz-Pipeline schicken
// Hauptfunktionen: AnalyzeHandler, newAnalyzeCmd
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/aegan/api"
	"github.com/ollama/aegan/dataset"
	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/pipeline"
	"github.com/ollama/aegan/towers"
)

// analysis sind die Zeilen der Ausgabetabelle, lokal wie remote
type analysis struct {
	bits, rateLoss, accuracy float64
	aeAccuracy, delta        *float64
	alpha, genLoss, discLoss float64
	latent                   []int
	active                   float64
}

func (a analysis) rows() [][]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	data := [][]string{
		{pipeline.TagBits, f(a.bits)},
		{pipeline.TagRateLoss, f(a.rateLoss)},
		{pipeline.TagAccuracy, f(a.accuracy)},
	}
	if a.aeAccuracy != nil {
		data = append(data, []string{"ms-ssim_AE", f(*a.aeAccuracy)})
		data = append(data, []string{pipeline.TagDeltaAccuracy, f(*a.delta)})
	}
	return append(data,
		[]string{"alpha", f(a.alpha)},
		[]string{pipeline.TagGeneratorLoss, f(a.genLoss)},
		[]string{pipeline.TagDiscriminatorLoss, f(a.discLoss)},
		[]string{"latent", fmt.Sprint(a.latent)},
		[]string{"active", f(a.active)},
	)
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

// AnalyzeHandler - Fuehrt einen Pipeline-Schritt auf einem Bild aus
func AnalyzeHandler(cmd *cobra.Command, args []string) error {
	size, err := cmd.Flags().GetInt("size")
	if err != nil {
		return err
	}
	if size == 0 {
		size = int(envconfig.ImageSize())
	}

	aePath, _ := cmd.Flags().GetString("ae")
	outPath, _ := cmd.Flags().GetString("out")
	dumpPath, _ := cmd.Flags().GetString("dump-f16")
	showIndices, _ := cmd.Flags().GetBool("indices")

	img, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ae, err := readOptional(aePath)
	if err != nil {
		return err
	}

	var a analysis
	var recon []byte
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		if dumpPath != "" || showIndices {
			return fmt.Errorf("--dump-f16 and --indices are only available locally")
		}

		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}
		resp, err := client.Analyze(cmd.Context(), &api.AnalyzeRequest{Image: img, AE: ae, Size: size})
		if err != nil {
			return err
		}

		a = analysis{
			bits: resp.Bits, rateLoss: resp.RateLoss, accuracy: resp.MSSSIM,
			aeAccuracy: resp.AEMSSSIM, delta: resp.DeltaMSSSIM,
			alpha: resp.Alpha, genLoss: resp.GeneratorLoss, discLoss: resp.DiscriminatorLoss,
			latent: resp.Latent, active: resp.Active,
		}
		recon = resp.Reconstruction
	} else {
		if size%towers.BlockSize != 0 {
			return fmt.Errorf("size %d must be a multiple of %d", size, towers.BlockSize)
		}

		x, err := dataset.DecodeTensor(img, size)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		var xAE *ml.Tensor
		if ae != nil {
			if xAE, err = dataset.DecodeTensor(ae, size); err != nil {
				return fmt.Errorf("%s: %w", aePath, err)
			}
		}

		p, err := towers.NewPipeline(pipeline.ConfigFromEnv())
		if err != nil {
			return err
		}
		res, err := p.Step(cmd.Context(), x, xAE)
		if err != nil {
			return err
		}

		a = analysis{
			bits: res.MeanBits(), rateLoss: res.RateLoss, accuracy: res.Accuracy,
			alpha: res.Generator.Alpha, genLoss: res.Generator.Total, discLoss: res.Discriminator.Total,
			latent: res.Quantized.ZHat.Shape(), active: res.ActiveFraction(),
		}
		if res.HasAE {
			a.aeAccuracy, a.delta = &res.AEAccuracy, &res.DeltaAccuracy
		}

		if outPath != "" {
			if err := writePNG(outPath, res.Reconstruction); err != nil {
				return err
			}
		}
		if dumpPath != "" {
			if err := writeF16(dumpPath, res.P); err != nil {
				return err
			}
		}
		if showIndices {
			fmt.Println(ml.DumpIndices(res.Quantized.Index, ml.DumpWithEdgeItems(2)))
		}
	}

	if outPath != "" && recon != nil {
		if err := os.WriteFile(outPath, recon, 0o644); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"METRIC", "VALUE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(a.rows())
	table.Render()

	return nil
}

func writePNG(path string, x *ml.Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := dataset.EncodePNG(w, x, 0); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeF16(path string, x *ml.Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ml.WriteF16(f, x); err != nil {
		return err
	}
	return f.Close()
}

// newAnalyzeCmd - Erstellt den analyze Command
func newAnalyzeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "analyze IMAGE",
		Short: "Run one pipeline step on an image and report rate and accuracy",
		Args:  cobra.ExactArgs(1),
		RunE:  AnalyzeHandler,
	}

	c.Flags().String("ae", "", "Reconstruction of the unmodified autoencoder for delta MS-SSIM")
	c.Flags().Int("size", 0, "Resize to SIZE x SIZE (default AEGAN_IMAGE_SIZE)")
	c.Flags().String("out", "", "Write the reconstruction as PNG")
	c.Flags().String("dump-f16", "", "Write the context model distribution P as float16")
	c.Flags().Bool("indices", false, "Print the quantization indices")
	c.Flags().Bool("remote", false, "Analyze on the running server instead of locally")

	return c
}
