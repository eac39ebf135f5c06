package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/coords"
	"github.com/dharsanguruparan/afesign/internal/model"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCoordsCmd() *cobra.Command {
	var page, canvas coords.Size
	cmd := &cobra.Command{
		Use:   "coords",
		Short: "Convert canvas positions to PDF points",
	}
	cmd.PersistentFlags().Float64Var(&page.Width, "page-width", 612, "Native page width in points")
	cmd.PersistentFlags().Float64Var(&page.Height, "page-height", 792, "Native page height in points")
	cmd.PersistentFlags().Float64Var(&canvas.Width, "canvas-width", 0, "Rendered canvas width in pixels")
	cmd.PersistentFlags().Float64Var(&canvas.Height, "canvas-height", 0, "Rendered canvas height in pixels")

	point := &cobra.Command{
		Use:   "point X Y",
		Short: "Convert a click to a PDF point",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := coords.New(page, canvas)
			if err != nil {
				return err
			}
			vals, err := parseFloats(args)
			if err != nil {
				return err
			}
			p := t.Point(coords.ScreenPoint{X: vals[0], Y: vals[1]})
			return printJSON(cmd.OutOrStdout(), model.PointPlacement(p))
		},
	}
	box := &cobra.Command{
		Use:   "box X Y WIDTH HEIGHT",
		Short: "Convert a drag rectangle to a PDF box",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := coords.New(page, canvas)
			if err != nil {
				return err
			}
			vals, err := parseFloats(args)
			if err != nil {
				return err
			}
			r, err := t.Box(coords.ScreenRect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.BoxPlacement(r))
		},
	}
	cmd.AddCommand(point, box)
	return cmd
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		if _, err := fmt.Sscanf(a, "%g", &out[i]); err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
	}
	return out, nil
}

func newPDFCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Inspect, rotate and stamp PDF files",
	}

	inspect := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print page count and page geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := pdfutil.Inspect(data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	var degrees int
	var output string
	rotate := &cobra.Command{
		Use:   "rotate FILE",
		Short: "Rotate every page, or fix sideways scans when --degrees is 0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := pdfutil.Orient(data, degrees)
			if err != nil {
				return err
			}
			return os.WriteFile(output, out, 0o644)
		},
	}
	rotate.Flags().IntVar(&degrees, "degrees", 0, "90, 180 or 270")
	rotate.Flags().StringVarP(&output, "output", "o", "rotated.pdf", "Output file")

	var marksFile, annotated, tz string
	annotate := &cobra.Command{
		Use:   "annotate FILE",
		Short: "Stamp signatures described by a JSON marks file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(marksFile)
			if err != nil {
				return err
			}
			var marks []pdfutil.Marks
			if err := json.Unmarshal(raw, &marks); err != nil {
				return fmt.Errorf("parse marks: %w", err)
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return err
			}
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			out, err := pdfutil.NewAnnotator(loc, log).Annotate(data, marks)
			if err != nil {
				return err
			}
			return os.WriteFile(annotated, out, 0o644)
		},
	}
	annotate.Flags().StringVar(&marksFile, "marks", "marks.json", "JSON array of signed slots")
	annotate.Flags().StringVarP(&annotated, "output", "o", "annotated.pdf", "Output file")
	annotate.Flags().StringVar(&tz, "timezone", "UTC", "Zone used to print signing dates")

	cmd.AddCommand(inspect, rotate, annotate)
	return cmd
}
