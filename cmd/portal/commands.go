package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mietwerk/portal/internal/config"
	"github.com/mietwerk/portal/internal/geo"
	"github.com/mietwerk/portal/internal/geocode"
)

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List valid configuration keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
}

// --- mock ---

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Control mock mode on the running server",
	Long: `Control mock mode on the running server.

In mock mode, write calls (login, register, bookings, issues) are answered
locally with synthetic data marked "(MOCK MODE)"; reads still go to the
housing service. Useful for development with the service offline.`,
}

var mockOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enable mock mode",
	RunE:  func(cmd *cobra.Command, args []string) error { return setMockMode(cmd, true) },
}

var mockOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disable mock mode",
	RunE:  func(cmd *cobra.Command, args []string) error { return setMockMode(cmd, false) },
}

var mockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether mock mode is enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/mock")
		if err != nil {
			return err
		}

		var result struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Enabled {
			printStatus("Mock mode", "enabled")
		} else {
			printStatus("Mock mode", "disabled")
		}
		return nil
	},
}

func setMockMode(cmd *cobra.Command, enabled bool) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.put(cmd.Context(), "/admin/mock", map[string]bool{"enabled": enabled})
	if err != nil {
		return err
	}

	var result struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if result.Enabled {
		printSuccess("Mock mode enabled")
	} else {
		printSuccess("Mock mode disabled")
	}
	return nil
}

func init() {
	mockCmd.AddCommand(mockOnCmd)
	mockCmd.AddCommand(mockOffCmd)
	mockCmd.AddCommand(mockStatusCmd)
}

// --- geocode ---

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address | lat,lon>",
	Short: "Resolve an address to coordinates, or coordinates to an address",
	Long: `Resolve an address to coordinates, or coordinates to an address.

Examples:
  portal geocode "Markt 87, Delft"
  portal geocode --reverse 52.0116,4.3571`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reverse, _ := cmd.Flags().GetBool("reverse")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		resolver := geocode.NewResolver(geocode.Config{
			BaseURL:      cfg.Geocode.BaseURL,
			UserAgent:    cfg.Geocode.UserAgent,
			CountryCodes: cfg.Geocode.CountryCodes,
		})

		if reverse {
			parts := strings.SplitN(strings.Join(args, ""), ",", 2)
			if len(parts) != 2 {
				return fmt.Errorf("expected lat,lon (e.g. 52.0116,4.3571)")
			}
			lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if errLat != nil || errLon != nil {
				return fmt.Errorf("lat and lon must be numbers")
			}
			coord := geo.Coordinate{Lat: lat, Lon: lon}
			if err := coord.Validate(); err != nil {
				return err
			}

			address, err := resolver.Reverse(cmd.Context(), coord)
			if err != nil {
				return err
			}
			fmt.Println(address)
			return nil
		}

		coord, err := resolver.Forward(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Printf("%.7f,%.7f\n", coord.Lat, coord.Lon)

		campus := geo.Coordinate{Lat: cfg.Campus.Lat, Lon: cfg.Campus.Lon}
		if campus.Validate() == nil {
			printStatus("Distance to campus", "%.2f km", geo.DistanceKm(coord, campus))
		}
		return nil
	},
}

func init() {
	geocodeCmd.Flags().Bool("reverse", false, "resolve coordinates to an address")
}
