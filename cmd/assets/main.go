package main

import (
	"log"
	"os"

	"github.com/ruteri/assetcache/cmd/flags"
	"github.com/urfave/cli/v2"
)

var dryRunFlag = &cli.BoolFlag{
	Name:  "dry-run",
	Usage: "log writes to the assets store instead of performing them",
}

var yesFlag = &cli.BoolFlag{
	Name:    "yes",
	Aliases: []string{"y"},
	Usage:   "do not ask for confirmation",
}

func main() {
	app := &cli.App{
		Name:  "assets",
		Usage: "Push, list and fetch versioned assets",
		Flags: append(append([]cli.Flag{flags.LogServiceFlagFn("assets")}, flags.CommonFlags...), flags.StorageFlags...),
		Commands: []*cli.Command{
			{
				Name:      "new",
				Usage:     "Create a new asset from a local path or a remote URL",
				ArgsUsage: "ASSET_PATH ASSET_NAME",
				Description: "Pushes ASSET_PATH as the initial version of ASSET_NAME. Fails if the asset exists, use update instead.\n" +
					"ASSET_PATH is a local file or directory, or an s3://, gs:// or azfs:// object or prefix.",
				Flags:  []cli.Flag{dryRunFlag, yesFlag},
				Action: newAsset,
			},
			{
				Name:      "update",
				Usage:     "Push a new version of an existing asset",
				ArgsUsage: "ASSET_PATH ASSET_NAME[:MAJOR]",
				Description: "Pushes ASSET_PATH as the next version of ASSET_NAME. By default the minor version of the latest\n" +
					"version (of MAJOR, if given) is incremented.",
				Flags: []cli.Flag{
					dryRunFlag,
					yesFlag,
					&cli.BoolFlag{
						Name:  "bump-major",
						Usage: "push a new major version (1.0, 2.0, ...)",
					},
				},
				Action: updateAsset,
			},
			{
				Name:   "list",
				Usage:  "List all assets of the store and their versions",
				Action: listAssets,
			},
			{
				Name:      "fetch",
				Usage:     "Fetch an asset into the assets directory, downloading it if necessary",
				ArgsUsage: "ASSET_SPEC",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "download",
						Usage: "discard any cached copy and download again",
					},
				},
				Action: fetchAsset,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
