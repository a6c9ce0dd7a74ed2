package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openindiana/pkg6/internal/image"
	"github.com/openindiana/pkg6/internal/shardsync"
)

// RootCmd is the main command for the 'pkg6' binary, the image-facing
// client counterpart to pkg6repo's repository-administration surface.
var RootCmd = &cobra.Command{
	Use:   "pkg6",
	Short: "manage a pkg6 client image",
}

var imageRoot string

func init() {
	RootCmd.PersistentFlags().StringVarP(&imageRoot, "image-dir", "R", "", "path to the install image")

	RootCmd.AddCommand(imageCreateCmd)
	RootCmd.AddCommand(setPublisherCmd)
	RootCmd.AddCommand(unsetPublisherCmd)
	RootCmd.AddCommand(publisherCmd)
	RootCmd.AddCommand(refreshCmd)

	for _, stub := range []*cobra.Command{
		installCmd, exactInstallCmd, uninstallCmd, updateCmd, listCmd,
		infoCmd, searchCmd, verifyCmd, fixCmd, historyCmd, contentsCmd,
	} {
		RootCmd.AddCommand(stub)
	}
}

// resolveImageRoot implements spec §6's image-selection default: the
// -R/--image-dir flag if given, else $HOME/.pkg if it exists, else "/".
func resolveImageRoot() string {
	if imageRoot != "" {
		return imageRoot
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".pkg")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "/"
}

func loadImage() (*image.Image, error) {
	return image.Load(resolveImageRoot())
}

var imageCreateType string

var imageCreateCmd = &cobra.Command{
	Use:   "image-create [-R PATH] [--type full|partial]",
	Short: "create a new install image",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := resolveImageRoot()
		t := image.TypeFull
		if imageCreateType == "partial" {
			t = image.TypePartial
		}
		if _, err := image.Create(root, t); err != nil {
			return err
		}
		fmt.Printf("created %s image at %s\n", t, root)
		return nil
	},
}

func init() {
	imageCreateCmd.Flags().StringVar(&imageCreateType, "type", "full", "image type: full or partial")
}

var (
	publisherOrigin    string
	publisherP5IFile   string
	publisherMirrors   []string
	publisherIsDefault bool
)

var setPublisherCmd = &cobra.Command{
	Use:   "set-publisher (-O ORIGIN | -p FILE.p5i) NAME",
	Short: "add or reconfigure a publisher",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}

		if publisherP5IFile != "" {
			data, err := os.ReadFile(publisherP5IFile)
			if err != nil {
				return err
			}
			if err := img.AddPublishersFromP5I(data); err != nil {
				return err
			}
			fmt.Printf("added publishers from %s\n", publisherP5IFile)
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("set-publisher: a publisher name is required unless -p FILE.p5i is given")
		}
		name := args[0]
		if err := img.AddPublisher(name, publisherOrigin, publisherMirrors, publisherIsDefault); err != nil {
			return err
		}
		fmt.Printf("added publisher %s (origin %s)\n", name, publisherOrigin)
		return nil
	},
}

func init() {
	setPublisherCmd.Flags().StringVarP(&publisherOrigin, "origin", "O", "", "repository origin URI")
	setPublisherCmd.Flags().StringVarP(&publisherP5IFile, "p5i-file", "p", "", "register every publisher named in a p5i document")
	setPublisherCmd.Flags().StringSliceVarP(&publisherMirrors, "mirror", "m", nil, "a mirror origin URI (repeatable)")
	setPublisherCmd.Flags().BoolVar(&publisherIsDefault, "default", false, "make this the preferred publisher")
}

var unsetPublisherCmd = &cobra.Command{
	Use:   "unset-publisher NAME...",
	Short: "remove one or more publishers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}
		for _, name := range args {
			if err := img.RemovePublisher(name); err != nil {
				return err
			}
		}
		return nil
	},
}

var publisherCmd = &cobra.Command{
	Use:   "publisher [NAME]",
	Short: "display configured publishers",
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}
		pubs := img.Publishers()
		if len(args) == 1 {
			for _, p := range pubs {
				if p.Name == args[0] {
					fmt.Printf("%s\nOrigin: %s\nMirrors: %v\nEnabled: %v\nPreferred: %v\n", p.Name, p.Origin, p.Mirrors, p.Enabled, p.Preferred)
					return nil
				}
			}
			return fmt.Errorf("no such publisher: %s", args[0])
		}
		for _, p := range pubs {
			mark := " "
			if p.Preferred {
				mark = "*"
			}
			fmt.Printf("%s%-20s %s\n", mark, p.Name, p.Origin)
		}
		return nil
	},
}

var refreshFull bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [PUBLISHER...]",
	Short: "re-sync one or more publishers' catalogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}
		client := shardsync.NewClient()
		if err := img.RefreshCatalogs(context.Background(), client, args, refreshFull); err != nil {
			return err
		}
		fmt.Println("catalogs refreshed")
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshFull, "full", false, "force a from-scratch re-download instead of an incremental sync")
}

// stub reports that a subcommand is recognized but not yet implemented,
// the way pkg(5)'s own client stubs out commands it hasn't grown into
// on a given platform release.
func stub(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: name + " (not yet implemented)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%s: not implemented", name)
		},
	}
}

var (
	installCmd      = stub("install")
	exactInstallCmd = stub("exact-install")
	uninstallCmd    = stub("uninstall")
	updateCmd       = stub("update")
	verifyCmd       = stub("verify")
	fixCmd          = stub("fix")
)

var listCmd = &cobra.Command{
	Use:   "list [PATTERN]",
	Short: "list packages known to the image's merged catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}
		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}
		entries, err := img.QueryCatalog(pattern)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e.FMRI)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info FMRI",
	Short: "show information about a cached manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("info: not implemented")
	},
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "search the image's merged catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}
		entries, err := img.QueryCatalog(args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s %s\n", e.Publisher, e.FMRI)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "show the image's operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}
		entries, err := img.History()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s %s\n", e.At.Format("2006-01-02T15:04:05Z"), e.Operation)
		}
		return nil
	},
}

var contentsCmd = &cobra.Command{
	Use:   "contents",
	Short: "list what the image's local catalog cache currently tracks",
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := loadImage()
		if err != nil {
			return err
		}
		entries, err := img.Contents()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s %s\n", e.Publisher, e.FMRI)
		}
		return nil
	},
}
