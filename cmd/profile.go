package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/KaramelBytes/wellrisk-cli/internal/dataset"
	"github.com/KaramelBytes/wellrisk-cli/internal/profile"
	"github.com/spf13/cobra"
)

var (
	pfFlags       runFlags
	pfDescription string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage encoding profiles (pinned scaling bounds and job roles)",
}

var profileFitCmd = &cobra.Command{
	Use:   "fit <name> <file>",
	Short: "Fit a profile on a reference dataset, creating it if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]
		if err := profile.ValidateName(name); err != nil {
			return err
		}
		root, err := defaultProfilesDir()
		if err != nil {
			return err
		}
		dir := profile.Dir(root, name)

		p, err := profile.LoadProfile(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			p = profile.NewProfile(name, pfDescription, dir)
		} else if cmd.Flags().Changed("desc") {
			p.Description = pfDescription
		}

		dopt, err := pfFlags.datasetOptions(effectiveConfig())
		if err != nil {
			return err
		}
		b, err := dataset.Load(path, dopt)
		if err != nil {
			return err
		}
		printWarnings(b.Warnings)
		if err := p.Fit(b); err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Fitted profile '%s' v%d on %d records: %s\n", p.Name, p.Version, p.Records, dir)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile's bounds and roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfileByName(args[0])
		if err != nil {
			return err
		}
		fmt.Print(p.Describe())
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := defaultProfilesDir()
		if err != nil {
			return err
		}
		list, err := profile.List(root)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("(no profiles)")
			return nil
		}
		for _, p := range list {
			fmt.Printf("- %s v%d (%d records) %s\n", p.Name, p.Version, p.Records, p.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileFitCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileListCmd)

	profileFitCmd.Flags().StringVarP(&pfDescription, "desc", "d", "", "profile description")
	profileFitCmd.Flags().StringVar(&pfFlags.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	profileFitCmd.Flags().StringVar(&pfFlags.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	profileFitCmd.Flags().StringVar(&pfFlags.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	profileFitCmd.Flags().StringVar(&pfFlags.sheetName, "sheet-name", "", "XLSX: sheet name to read")
	profileFitCmd.Flags().IntVar(&pfFlags.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}
