package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	assetmodels "custodian/internal/asset/models"
	"custodian/internal/platform/postgres"
	sealmodels "custodian/internal/seal/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/strings"
)

// inventory is the seed file format:
//
//	actor: 6f1c...            # user recorded as creator
//	assets:
//	  - serial: BB-0001
//	    type: ballot_box
//	    tag: BC-100
//	    location: WH-CENTRAL
//	seals: [SEAL-0001, SEAL-0002]
type inventory struct {
	Actor  string      `yaml:"actor"`
	Assets []seedAsset `yaml:"assets"`
	Seals  []string    `yaml:"seals"`
}

type seedAsset struct {
	Serial    string `yaml:"serial"`
	Type      string `yaml:"type"`
	Tag       string `yaml:"tag"`
	Condition string `yaml:"condition"`
	Location  string `yaml:"location"`
}

type assetRegistrar interface {
	Register(ctx context.Context, in assetmodels.RegisterInput, actor id.UserID) (*assetmodels.Asset, error)
}

type sealRegistrar interface {
	Register(ctx context.Context, number string, actor id.UserID) (*sealmodels.Seal, error)
}

type seedResult struct {
	Assets  int
	Seals   int
	Skipped int
}

func parseInventory(r io.Reader) (inventory, error) {
	var inv inventory
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil && err != io.EOF {
		return inventory{}, fmt.Errorf("parse inventory: %w", err)
	}
	inv.Seals = strings.Compact(inv.Seals)
	return inv, nil
}

// applyInventory registers everything in inv. Entries that already exist are
// skipped so a seed file can be run repeatedly. Against postgres the whole
// file is applied in one transaction.
func applyInventory(ctx context.Context, assets assetRegistrar, seals sealRegistrar, inv inventory, actor id.UserID) (seedResult, error) {
	var res seedResult
	for _, a := range inv.Assets {
		_, err := assets.Register(ctx, assetmodels.RegisterInput{
			Serial:    a.Serial,
			Type:      a.Type,
			Tag:       a.Tag,
			Condition: a.Condition,
			Location:  id.NewLocation(a.Location),
		}, actor)
		switch {
		case dErrors.HasCode(err, dErrors.CodeDuplicate):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("asset %s: %w", a.Serial, err)
		default:
			res.Assets++
		}
	}
	for _, number := range inv.Seals {
		_, err := seals.Register(ctx, number, actor)
		switch {
		case dErrors.HasCode(err, dErrors.CodeDuplicate):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seal %s: %w", number, err)
		default:
			res.Seals++
		}
	}
	return res, nil
}

func newSeedCommand() *cobra.Command {
	var file, actorFlag string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register assets and seals from a YAML inventory file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open inventory: %w", err)
			}
			defer f.Close()
			inv, err := parseInventory(f)
			if err != nil {
				return err
			}
			if actorFlag != "" {
				inv.Actor = actorFlag
			}
			actor, err := id.ParseUserID(inv.Actor)
			if err != nil {
				return fmt.Errorf("seed actor: %w", err)
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				log.Warn("no database configured; seeded inventory is discarded on exit")
			}
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			var res seedResult
			apply := func(ctx context.Context) error {
				res, err = applyInventory(ctx, a.services.Assets, a.services.Seals, inv, actor)
				return err
			}
			if a.db != nil {
				err = postgres.RunInTx(ctx, a.db, apply)
			} else {
				err = apply(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %d assets, %d seals (%d already present)\n", res.Assets, res.Seals, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "inventory YAML file")
	cmd.Flags().StringVar(&actorFlag, "actor", "", "acting user id; overrides the file's actor")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
