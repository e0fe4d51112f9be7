package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/gesture"
)

var (
	selectPreset string

	scoreTranslation string
	scoreDurationMs  int64
)

var selectCmd = &cobra.Command{
	Use:   "select [frames.json]",
	Short: "Print the key frames the selector picks from a recorded frame buffer",
	Long: `Reads a JSON array of frames ({"timestamp","imageData","landmarks"}) from the
file argument or stdin and prints the selected indices.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frames, err := readFrames(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		sel, err := cfg.SelectionDefault()
		if err != nil {
			return err
		}
		if selectPreset != "" {
			if sel, err = gesture.PresetConfig(gesture.Preset(selectPreset)); err != nil {
				return err
			}
		}

		indices := gesture.SelectKeyFramesAdaptive(frames, sel)
		profile := gesture.ComputeMotionProfile(frames)
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"indices":      indices,
			"frameCount":   len(frames),
			"meanVelocity": profile.MeanVelocity(),
			"maxVelocity":  profile.MaxVelocity(),
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score [frames.json]",
	Short: "Score a translation against a recorded frame buffer",
	Long: `Computes the confidence result for --translation over the frames read from
the file argument or stdin. With no frames only the response and duration
factors carry information.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scoreDurationMs < 0 {
			return fmt.Errorf("--duration-ms must not be negative")
		}

		var frames []gesture.HandFrame
		if len(args) > 0 {
			var err error
			if frames, err = readFrames(cmd.InOrStdin(), args); err != nil {
				return err
			}
		}

		result := confidence.Calculate(scoreTranslation, frames, scoreDurationMs, cfg.Confidence)
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	selectCmd.Flags().StringVar(&selectPreset, "preset", "", "selection preset: fast, balanced or accurate")

	scoreCmd.Flags().StringVar(&scoreTranslation, "translation", "", "translated text to score")
	scoreCmd.Flags().Int64Var(&scoreDurationMs, "duration-ms", 0, "sign duration in milliseconds")
	scoreCmd.MarkFlagRequired("translation")

	rootCmd.AddCommand(selectCmd, scoreCmd)
}

// readFrames decodes a frame buffer from the named file, or from stdin when
// no file or "-" is given.
func readFrames(stdin io.Reader, args []string) ([]gesture.HandFrame, error) {
	r := stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var frames []gesture.HandFrame
	if err := json.NewDecoder(r).Decode(&frames); err != nil {
		return nil, fmt.Errorf("failed to decode frames: %w", err)
	}
	return frames, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
