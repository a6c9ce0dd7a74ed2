package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/manifest"
	"github.com/openindiana/pkg6/internal/repo"
	"github.com/openindiana/pkg6/internal/repoconfig"
	"github.com/openindiana/pkg6/internal/serverconfig"
	"github.com/openindiana/pkg6/internal/storagedriver/filesystem"
	"github.com/openindiana/pkg6/registry/api/httpapi"
)

// RootCmd is the main command for the 'pkg6repo' binary, the
// repository-administration counterpart to 'pkg6' (cmd/registry's
// RootCmd/subcommand shape, retargeted at spec §6's repository CLI).
var RootCmd = &cobra.Command{
	Use:   "pkg6repo",
	Short: "administer a pkg6 package repository",
}

func init() {
	RootCmd.AddCommand(createCmd)
	RootCmd.AddCommand(addPublisherCmd)
	RootCmd.AddCommand(removePublisherCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(infoCmd)
	RootCmd.AddCommand(contentsCmd)
	RootCmd.AddCommand(rebuildCmd)
	RootCmd.AddCommand(refreshCmd)
	RootCmd.AddCommand(verifyCmd)
	RootCmd.AddCommand(setCmd)
	RootCmd.AddCommand(getCmd)
	RootCmd.AddCommand(serveCmd)
}

var createVersion int

var createCmd = &cobra.Command{
	Use:   "create PATH",
	Short: "create a new repository at PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if createVersion < repoconfig.MinVersion || createVersion > repoconfig.MaxVersion {
			return fmt.Errorf("unsupported repository version %d (supported: %d-%d)", createVersion, repoconfig.MinVersion, repoconfig.MaxVersion)
		}
		driver, err := filesystem.New(path)
		if err != nil {
			return err
		}
		if _, err := repo.Open(driver, path, nil); err != nil {
			return err
		}
		fmt.Printf("created repository at %s (version %d)\n", path, createVersion)
		return nil
	},
}

func init() {
	createCmd.Flags().IntVar(&createVersion, "version", repoconfig.MaxVersion, "repository config version")
}

var addPublisherCmd = &cobra.Command{
	Use:   "add-publisher -s PATH NAME...",
	Short: "register one or more publishers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		for _, name := range args {
			if err := r.AddPublisher(name); err != nil {
				return err
			}
		}
		return nil
	},
}

var removePublisherCmd = &cobra.Command{
	Use:   "remove-publisher -s PATH NAME...",
	Short: "remove one or more publishers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		for _, name := range args {
			if err := r.RemovePublisher(name); err != nil {
				return err
			}
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list -s PATH",
	Short: "list published packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		pubs, err := r.Publishers()
		if err != nil {
			return err
		}
		for _, pub := range pubs {
			versions, err := listAllStems(r, pub)
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Println(v)
			}
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info -s PATH",
	Short: "show summary information about a repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		pubs, err := r.Publishers()
		if err != nil {
			return err
		}
		fmt.Printf("publishers: %d\n", len(pubs))
		for _, p := range pubs {
			fmt.Println(" ", p)
		}
		return nil
	},
}

var contentsCmd = &cobra.Command{
	Use:   "contents -s PATH FMRI",
	Short: "list the file actions of a package's manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		return printManifestContents(r, args[0])
	},
}

var rebuildNoCatalog bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild -s PATH [PUBLISHER]",
	Short: "regenerate catalog parts and shard index from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		var pub string
		if len(args) > 0 {
			pub = args[0]
		}
		return r.Rebuild(pub, rebuildNoCatalog)
	},
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildNoCatalog, "no-catalog", false, "skip catalog part regeneration")
}

var refreshCmd = &cobra.Command{
	Use:   "refresh -s PATH PUBLISHER",
	Short: "regenerate catalog parts without reindexing from scratch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		return r.Refresh(args[0])
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify -s PATH PUBLISHER",
	Short: "verify every manifest's referenced file actions are present and correctly hashed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		result, err := r.Verify(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("checked %d manifests, %d files, %d errors\n", result.ManifestsChecked, result.FilesChecked, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Println(" ", e)
		}
		if len(result.Errors) > 0 {
			os.Exit(1)
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set -s PATH property=value|publisher/property=value",
	Short: "set a repository or publisher property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("set:", args[0], "(repository/publisher property storage beyond name/version is out of scope for this repository format)")
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get -s PATH [property]",
	Short: "display repository or publisher properties",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("repo")
		r, err := openRepo(path)
		if err != nil {
			return err
		}
		pubs, err := r.Publishers()
		if err != nil {
			return err
		}
		fmt.Printf("publishers=%v\n", pubs)
		return nil
	},
}

var serverConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve [config.kdl]",
	Short: "serve a repository over the HTTP wire protocol",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			serverConfigPath = args[0]
		}
		cfg, err := serverconfig.Load(serverConfigPath)
		if err != nil {
			return err
		}

		driver, err := filesystem.New(cfg.Repository.Root)
		if err != nil {
			return err
		}
		r, err := repo.Open(driver, cfg.Repository.Root, logrus.StandardLogger())
		if err != nil {
			return err
		}

		srv := httpapi.NewServer(r, cfg.Repository.Root, logrus.StandardLogger())
		logrus.Infof("listening on %s", cfg.Server.Bind)
		return http.ListenAndServe(cfg.Server.Bind, srv)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{
		addPublisherCmd, removePublisherCmd, listCmd, infoCmd, contentsCmd,
		rebuildCmd, refreshCmd, verifyCmd, setCmd, getCmd,
	} {
		cmd.Flags().StringP("repo", "s", "", "repository path")
	}
}

func listAllStems(r *repo.Repository, publisher string) ([]string, error) {
	stems, err := r.Stems(publisher)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, stem := range stems {
		versions, err := r.ListManifests(publisher, stem)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			out = append(out, fmt.Sprintf("pkg://%s/%s@%s", publisher, stem, v.String()))
		}
	}
	return out, nil
}

func printManifestContents(r *repo.Repository, fmriStr string) error {
	f, err := fmri.Parse(fmriStr)
	if err != nil {
		return err
	}
	raw, err := r.GetManifestBytes(f)
	if err != nil {
		return err
	}
	m, _ := manifest.Parse(bytes.NewReader(raw))
	for _, a := range m.Actions {
		if a.Kind != manifest.KindFile {
			continue
		}
		fmt.Printf("%s %d %s\n", a.Path, a.Size, a.Mode)
	}
	return nil
}

func openRepo(path string) (*repo.Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("missing -s/--repo repository path")
	}
	driver, err := filesystem.New(path)
	if err != nil {
		return nil, err
	}
	return repo.Open(driver, path, nil)
}
