package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/db"
	"github.com/sells-group/listing-dedup/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <listings.json>",
	Short: "Bulk load scraped listings into the queue",
	Long:  "Loads a JSON array of normalized listings. New listings enter the queue as pending; re-imported listings refresh their fields without touching their dedup state.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read listings file")
		}

		var listings []model.Listing
		if err := json.Unmarshal(data, &listings); err != nil {
			return eris.Wrap(err, "parse listings file")
		}
		if len(listings) == 0 {
			zap.L().Info("nothing to import")
			return nil
		}

		for i := range listings {
			if listings[i].ID == "" || listings[i].Platform == "" {
				return eris.Errorf("listing %d: id and platform are required", i)
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		columns := []string{
			"id", "platform", "latitude", "longitude", "geocode_status",
			"property_type", "operation_type", "price", "currency",
			"built_size_m2", "lot_size_m2", "bedrooms", "bathrooms",
			"address", "colonia", "city", "state",
		}

		rows := make([][]any, 0, len(listings))
		for i := range listings {
			l := &listings[i]

			var lat, lng *float64
			if l.Coordinates != nil {
				lat, lng = &l.Coordinates.Latitude, &l.Coordinates.Longitude
			}
			geocodeStatus := l.GeocodeStatus
			if geocodeStatus == "" {
				geocodeStatus = model.GeocodeNotAttempted
			}

			rows = append(rows, []any{
				l.ID, l.Platform, lat, lng, string(geocodeStatus),
				l.PropertyType, string(l.OperationType), l.Price, l.Currency,
				l.BuiltSizeM2, l.LotSizeM2, l.Bedrooms, l.Bathrooms,
				l.Address, l.Colonia, l.City, l.State,
			})
		}

		// dedup_status is deliberately not in the column list: new rows get
		// the pending default, existing rows keep their current state.
		n, err := db.BulkUpsert(ctx, st.Pool(), db.UpsertConfig{
			Table:        "listings",
			Columns:      columns,
			ConflictKeys: []string{"id"},
		}, rows)
		if err != nil {
			return eris.Wrap(err, "import listings")
		}

		zap.L().Info("listings imported", zap.Int64("rows", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
