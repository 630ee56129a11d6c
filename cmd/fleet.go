package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfms/agvd/config"
	"github.com/openfms/agvd/infra/storage"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "List vehicles currently online",
	RunE:  listFleet,
}

func init() {
	rootCmd.AddCommand(fleetCmd)
}

func listFleet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	store := storage.NewStore(db)
	agvs, err := store.ListConnectedAgvs(context.Background())
	if err != nil {
		return err
	}
	if len(agvs) == 0 {
		fmt.Println("no vehicles online")
		return nil
	}
	for _, a := range agvs {
		station := a.CurrentStationCode
		if station == "" {
			station = "-"
		}
		fmt.Printf("%-8s battery=%3d%% station=%-12s last seen %s\n",
			a.Code, a.Battery, station, a.LastSeen.Format("15:04:05"))
	}
	return nil
}
