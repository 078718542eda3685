package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/assetcache/assetspec"
	"github.com/ruteri/assetcache/cmd/flags"
	"github.com/ruteri/assetcache/interfaces"
	"github.com/ruteri/assetcache/manager"
	"github.com/ruteri/assetcache/remote"
	"github.com/urfave/cli/v2"
)

// maxAssetFiles is the number of files above which pushing asks for confirmation.
const maxAssetFiles = 50

func newAsset(cCtx *cli.Context) error {
	assetPath, assetName, err := pushArgs(cCtx)
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx)

	provider, err := flags.ConfigureProvider(cCtx, logger, cCtx.Bool(dryRunFlag.Name))
	if err != nil {
		logger.Error("Failed to configure the assets store", "err", err)
		return err
	}
	spec, err := assetspec.Parse(assetName, provider.Versioning())
	if err != nil {
		return err
	}
	version := provider.Versioning().InitialVersion()

	out := cCtx.App.Writer
	printDestination(out, provider)
	fmt.Fprintf(out, "Current asset: `%s`\n - name = `%s`\n", assetName, spec.Name)

	return pushConfirmed(cCtx, logger, assetPath, fmt.Sprintf("Push a new asset `%s` with version `%s`?", spec.Name, version),
		func(localPath string) error {
			return provider.New(cCtx.Context, localPath, spec.Name, version)
		})
}

func updateAsset(cCtx *cli.Context) error {
	assetPath, assetName, err := pushArgs(cCtx)
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx)

	provider, err := flags.ConfigureProvider(cCtx, logger, cCtx.Bool(dryRunFlag.Name))
	if err != nil {
		logger.Error("Failed to configure the assets store", "err", err)
		return err
	}
	vs := provider.Versioning()
	spec, err := assetspec.Parse(assetName, vs)
	if err != nil {
		return err
	}

	out := cCtx.App.Writer
	printDestination(out, provider)
	fmt.Fprintf(out, "Current asset: `%s`\n - versioning system = `%s`\n - name = `%s`\n - version = `%s`\n",
		assetName, vs.Name(), spec.Name, spec.Version)

	versions, err := provider.GetVersionsInfo(cCtx.Context, spec.Name)
	if errors.Is(err, interfaces.ErrObjectDoesNotExist) {
		return cli.Exit("Remote asset not found. Create it first using `new`", 1)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, vs.Describe(versions))

	major := ""
	if spec.Version != "" {
		major = vs.MajorOf(spec.Version)
	}
	version, err := vs.IncrementVersion(versions, interfaces.IncrementParams{
		BumpMajor: cCtx.Bool("bump-major"),
		Major:     major,
	})
	if err != nil {
		return err
	}

	return pushConfirmed(cCtx, logger, assetPath, fmt.Sprintf("Push a new asset version `%s` for `%s`?", version, spec.Name),
		func(localPath string) error {
			return provider.Update(cCtx.Context, localPath, spec.Name, version)
		})
}

func listAssets(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	provider, err := flags.ConfigureProvider(cCtx, logger, false)
	if err != nil {
		logger.Error("Failed to configure the assets store", "err", err)
		return err
	}

	out := cCtx.App.Writer
	printDestination(out, provider)

	assets, versions := 0, 0
	for asset, err := range provider.IterateAssets(cCtx.Context) {
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", asset.Name, strings.Join(asset.Versions, " "))
		assets++
		versions += len(asset.Versions)
	}
	fmt.Fprintf(out, "Found %d assets (%d different versions)\n", assets, versions)
	return nil
}

func fetchAsset(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.ShowSubcommandHelp(cCtx)
	}
	logger := flags.SetupLogger(cCtx)

	m, err := flags.ConfigureManager(cCtx, logger)
	if err != nil {
		logger.Error("Failed to configure the assets manager", "err", err)
		return err
	}

	res, err := m.FetchAsset(cCtx.Context, cCtx.Args().First(), manager.WithForceDownload(cCtx.Bool("download")))
	if err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "path = %s\nversion = %s\nfrom_cache = %t\n", res.Path, res.Version, res.FromCache)
	return nil
}

func pushArgs(cCtx *cli.Context) (string, string, error) {
	if cCtx.NArg() != 2 {
		return "", "", fmt.Errorf("expected ASSET_PATH and ASSET_NAME, got %d arguments", cCtx.NArg())
	}
	return cCtx.Args().Get(0), cCtx.Args().Get(1), nil
}

// pushConfirmed asks for confirmation, resolves assetPath to a local path
// and hands it to push.
func pushConfirmed(cCtx *cli.Context, logger *slog.Logger, assetPath, question string, push func(localPath string) error) error {
	out := cCtx.App.Writer
	in := bufio.NewReader(os.Stdin)
	yes := cCtx.Bool(yesFlag.Name)

	if n, err := countFiles(assetPath); err == nil && n > maxAssetFiles {
		fmt.Fprintf(out, "It looks like you are attempting to push an asset with more than %d files in it (%d).\n"+
			"This can lead to poor performance when retrieving the asset, and should be avoided.\n"+
			"You should consider archiving and compressing it.\n", maxAssetFiles, n)
		if !yes && !confirm(in, out, "Proceed anyways?") {
			return cli.Exit("Aborting.", 1)
		}
	}

	fmt.Fprintln(out, question)
	if !yes && !confirm(in, out, "[y/N]") {
		fmt.Fprintln(out, "Aborting.")
		return nil
	}

	base, err := flags.ConfigureDriver(cCtx)
	if err != nil {
		return err
	}
	localPath, cleanup, err := resolveSource(cCtx.Context, logger, base, assetPath)
	if err != nil {
		logger.Error("Failed to resolve asset source", slog.String("path", assetPath), "err", err)
		return err
	}
	defer cleanup()

	return push(localPath)
}

func printDestination(out io.Writer, provider *remote.StorageProvider) {
	fmt.Fprintf(out, "Destination assets provider:\n - storage driver = `%s`\n - driver bucket = `%s`\n - prefix = `%s`\n",
		provider.Driver().Name(), provider.Driver().Bucket(), provider.Prefix())
}

func confirm(in *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt+" ")
	answer, err := in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
