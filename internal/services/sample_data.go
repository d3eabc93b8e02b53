package services

// sampleRooms is the offline fallback listing. Served only outside
// production, and always marked Sampled in the returned RoomList.
func sampleRooms() []Room {
	return []Room{
		{
			ID:          9001,
			Name:        "Sample: Studio Kanaalweg",
			Description: "Bright 24m2 studio close to campus. Sample listing shown while the housing service is unreachable.",
			Address:     "Kanaalweg 2B, Delft",
			PriceEuro:   640,
			SizeSqm:     24,
			Available:   true,
			Lat:         52.0030,
			Lon:         4.3670,
		},
		{
			ID:          9002,
			Name:        "Sample: Room Voorstraat",
			Description: "Furnished room in a shared house, 16m2, shared kitchen. Sample listing shown while the housing service is unreachable.",
			Address:     "Voorstraat 88, Delft",
			PriceEuro:   495,
			SizeSqm:     16,
			Available:   true,
			Lat:         52.0145,
			Lon:         4.3580,
		},
		{
			ID:          9003,
			Name:        "Sample: Apartment Papsouwselaan",
			Description: "Two-room apartment, 48m2, suitable for couples. Sample listing shown while the housing service is unreachable.",
			Address:     "Papsouwselaan 120, Delft",
			PriceEuro:   980,
			SizeSqm:     48,
			Available:   false,
			Lat:         51.9995,
			Lon:         4.3527,
		},
	}
}
