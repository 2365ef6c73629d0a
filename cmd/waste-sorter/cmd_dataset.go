package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/menta2k/waste-sorter/pkg/augment"
	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/dataset"
)

func newAugmentCmd(a *app) *cobra.Command {
	var opts augment.Options
	cmd := &cobra.Command{
		Use:   "augment --in DIR --out DIR",
		Short: "Write randomized variants of every image in a class-per-folder dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("copies") {
				opts.Copies = a.cfg.Augment.Copies
			}
			if !cmd.Flags().Changed("workers") {
				opts.Workers = a.cfg.Augment.Workers
			}
			if !cmd.Flags().Changed("dedup") {
				opts.Dedup = a.cfg.Augment.Dedup
			}
			opts.Quality = a.cfg.Augment.Quality
			opts.DedupDistance = a.cfg.Augment.DedupDistance
			opts.Logger = a.logger

			stats, err := augment.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&opts.InputDir, "in", "", "input directory with one subdirectory per class")
	cmd.Flags().StringVar(&opts.OutputDir, "out", "", "output directory")
	cmd.Flags().IntVar(&opts.Copies, "copies", augment.DefaultCopies, "variants per source image")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks one from the clock)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "images augmented concurrently per class")
	cmd.Flags().BoolVar(&opts.Dedup, "dedup", false, "skip variants that look like one already written")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newScaffoldCmd(a *app) *cobra.Command {
	var classes []string
	cmd := &cobra.Command{
		Use:   "scaffold [root]",
		Short: "Create images/train and labels/train folders for each class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := dataset.Scaffold(args[0], classes)
			if err != nil {
				return err
			}
			for _, p := range created {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&classes, "classes", nil, "class names (defaults to the built-in list)")
	return cmd
}

func newClassesCmd(a *app) *cobra.Command {
	var namesPath, associatesPath string
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "Export catalog item names and associates as class lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(a.cfg.Catalog.ItemsPath)
			if err != nil {
				return err
			}
			items := cat.Items()

			n, err := dataset.WriteNames(items, namesPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d names to %s\n", n, namesPath)

			if associatesPath != "" {
				n, err := dataset.AppendAssociates(items, associatesPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "appended %d associates to %s\n", n, associatesPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&namesPath, "names", "classes.txt", "file receiving one item name per line")
	cmd.Flags().StringVar(&associatesPath, "associates", "", "file to append every associate to")
	return cmd
}

func newDatasetYAMLCmd(a *app) *cobra.Command {
	var train, val, out string
	cmd := &cobra.Command{
		Use:   "dataset-yaml [root]",
		Short: "Write a dataset.yaml naming the classes found under the train split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			classes, err := dataset.DetectClasses(filepath.Join(root, train))
			if err != nil {
				return err
			}
			if len(classes) == 0 {
				return fmt.Errorf("no class directories under %s", filepath.Join(root, train))
			}
			if out == "" {
				out = filepath.Join(root, "dataset.yaml")
			}
			if err := dataset.WriteConfig(out, dataset.NewConfig(root, train, val, classes)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d classes to %s\n", len(classes), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&train, "train", "train", "train split, relative to root")
	cmd.Flags().StringVar(&val, "val", "", "validation split, relative to root")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to <root>/dataset.yaml)")
	return cmd
}
