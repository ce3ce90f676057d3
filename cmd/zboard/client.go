package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dreamware/zboard/internal/client"
	"github.com/dreamware/zboard/internal/config"
	"github.com/dreamware/zboard/internal/widget"
)

const defaultAddr = "http://localhost:8080"

// newClientCmds builds the commands that talk to a running server
// They share --addr, defaulting to $ZBOARD_ADDR.
func newClientCmds() []*cobra.Command {
	var addr string
	connect := func() *client.Client { return client.New(addr) }

	cmds := []*cobra.Command{
		newListCmd(connect),
		newGetCmd(connect),
		newCreateCmd(connect),
		newDeleteCmd(connect),
		newAreaCmd(connect),
		newStatsCmd(connect),
	}
	for _, cmd := range cmds {
		cmd.Flags().StringVar(&addr, "addr", config.Getenv("ZBOARD_ADDR", defaultAddr), "server base URL")
	}
	return cmds
}

// printJSON writes v indented to the command's output
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid widget id %q: %w", raw, err)
	}
	return id, nil
}

func newListCmd(connect func() *client.Client) *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of widgets in z-order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := connect().List(cmd.Context(), widget.Page{Number: page, Size: size})
			if err != nil {
				return err
			}
			return printJSON(cmd, ws)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number, starting at 0")
	cmd.Flags().IntVar(&size, "page-size", 10, "widgets per page")
	return cmd
}

func newGetCmd(connect func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one widget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			w, err := connect().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
}

func newCreateCmd(connect func() *client.Client) *cobra.Command {
	var (
		z   int
		geo widget.Geometry
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Place a new widget, on top unless --z is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			create := widget.CreateCommand{Geometry: geo}
			if cmd.Flags().Changed("z") {
				create.ZIndex = widget.Z(z)
			}
			w, err := connect().Create(cmd.Context(), create)
			if err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Debug("created", "id", w.ID, "z", w.ZIndex)
			return printJSON(cmd, w)
		},
	}
	cmd.Flags().IntVar(&z, "z", 0, "z-index")
	cmd.Flags().IntVar(&geo.X, "x", 0, "x coordinate")
	cmd.Flags().IntVar(&geo.Y, "y", 0, "y coordinate")
	cmd.Flags().IntVar(&geo.Width, "width", 0, "width (> 0)")
	cmd.Flags().IntVar(&geo.Height, "height", 0, "height (> 0)")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func newDeleteCmd(connect func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a widget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			w, err := connect().Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
}

func newAreaCmd(connect func() *client.Client) *cobra.Command {
	var area widget.Area
	cmd := &cobra.Command{
		Use:   "area",
		Short: "List widgets whose centerpoint lies strictly inside a rectangle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := connect().InArea(cmd.Context(), area)
			if err != nil {
				return err
			}
			return printJSON(cmd, ws)
		},
	}
	cmd.Flags().IntVar(&area.LowerLeft.X, "x1", 0, "lower left x")
	cmd.Flags().IntVar(&area.LowerLeft.Y, "y1", 0, "lower left y")
	cmd.Flags().IntVar(&area.UpperRight.X, "x2", 0, "upper right x")
	cmd.Flags().IntVar(&area.UpperRight.Y, "y2", 0, "upper right y")
	return cmd
}

func newStatsCmd(connect func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show server counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := connect().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}
