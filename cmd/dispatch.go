package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openfms/agvd/app"
	"github.com/openfms/agvd/config"
	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/task"
	"github.com/openfms/agvd/infra/logger"
)

var (
	dispatchType string
	dispatchBy   string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <agv-code> <target-station>",
	Short: "Create a task for a vehicle",
	Args:  cobra.ExactArgs(2),
	RunE:  dispatchTask,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchType, "type", "t", "call_for_loading",
		"task type: call_for_loading, send_to_unloading, return_to_waiting, send_to_charge")
	dispatchCmd.Flags().StringVar(&dispatchBy, "by", "cli", "requesting operator")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	taskType, err := parseTaskType(dispatchType)
	if err != nil {
		return err
	}

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("dispatch-command").Errorf("service close: %v", err)
		}
	}()

	t, err := svc.Manager().CreateTask(ctx, task.CreateTaskRequest{
		Type:              taskType,
		AgvCode:           args[0],
		TargetStationCode: args[1],
		RequestedBy:       dispatchBy,
	})
	if err != nil {
		return err
	}
	fmt.Printf("task %s assigned to %s: %s -> %s\n", t.ID, t.AssignedAgvCode, t.StartStationCode, t.EndStationCode)
	return nil
}

func parseTaskType(s string) (model.TaskType, error) {
	switch strings.ToLower(s) {
	case "call_for_loading":
		return model.TaskCallForLoading, nil
	case "send_to_unloading":
		return model.TaskSendToUnloading, nil
	case "return_to_waiting":
		return model.TaskReturnToWaiting, nil
	case "send_to_charge":
		return model.TaskSendToCharge, nil
	default:
		return 0, fmt.Errorf("unknown task type %q", s)
	}
}
