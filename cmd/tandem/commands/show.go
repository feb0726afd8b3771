package commands

import (
	"errors"

	"github.com/dyluth/tandem/internal/listing"
	"github.com/dyluth/tandem/internal/printer"
	"github.com/dyluth/tandem/internal/resolver"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <sample-id>",
	Short: "Show one sample as JSON",
	Long: `Show a stored sample, with its derived score, as indented JSON.

The ID may be the full UUID or a prefix of at least 6 characters, such as the
short IDs printed by 'tandem list'.

Examples:
  tandem show 7d3e9b14
  tandem show 7d3e9b14-2c5f-4e8a-b1d6-9f0e8d7c6b5a`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, newLogger(cfg, true))
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := resolver.Resolve(st.LoadAll(), args[0])
	if err != nil {
		var amb *resolver.AmbiguousError
		switch {
		case resolver.IsNotFoundError(err):
			return printer.Error(
				"sample not found",
				err.Error(),
				[]string{"List stored samples:\n  tandem list"},
			)
		case errors.As(err, &amb):
			return printer.Error("ambiguous sample ID", resolver.FormatAmbiguousError(amb), nil)
		default:
			return printer.Error("invalid sample ID", err.Error(), nil)
		}
	}

	return listing.FormatSingleJSON(printer.Stdout, s)
}
