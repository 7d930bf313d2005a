package seat

// DefaultRooms is the room layout of the deployed seat system. Offsets follow
// the backend's internal slot numbering and must be updated with it.
func DefaultRooms() []Room {
	return []Room{
		// Huajin campus, 2F
		{Name: "花津二楼报刊阅览室", Prefix: "nbk", Seats: 430, Rules: flat(0)},
		{Name: "花津二楼电子阅览室", Prefix: "ndz", Seats: 188, Rules: flat(2875)},
		// 3F
		{Name: "花津三楼社科一", Prefix: "nsk1", Seats: 342, Rules: flat(1095)},
		{Name: "花津三楼自然阅览室", Prefix: "nzr1", Seats: 343, Rules: flat(1437)},
		{Name: "花津三楼公共东", Prefix: "ngg3e", Seats: 96, Rules: []OffsetRule{
			{Min: 1, Max: 88, Offset: 2433},
			{Min: 89, Offset: 2593},
		}},
		{Name: "花津三楼公共西", Prefix: "ngg3w", Seats: 96, Rules: flat(2521)},
		// 4F
		{Name: "花津四楼社科三", Prefix: "nsk3", Seats: 318, Rules: flat(523)},
		{Name: "花津四楼社科二", Prefix: "nsk2", Seats: 302, Rules: flat(823)},
		{Name: "花津四楼公共东", Prefix: "ngg4e", Seats: 88, Rules: []OffsetRule{
			{Min: 1, Max: 32, Offset: 2617},
			{Min: 33, Offset: 2721},
		}},
		{Name: "花津四楼公共西", Prefix: "ngg4w", Seats: 100, Rules: []OffsetRule{
			{Min: 1, Max: 32, Offset: 2649},
			{Min: 33, Max: 96, Offset: 2657},
			{Min: 97, Offset: 3046},
		}},
		// 5F
		{Name: "花津五楼公共", Prefix: "ngg5", Seats: 37, Rules: flat(3063)},
		// Zheshan campus
		{Name: "赭山文科室", Prefix: "zsk1", Seats: 112, Rules: flat(1780)},
		{Name: "赭山理科室", Prefix: "zzr1", Seats: 112, Rules: flat(2092)},
		{Name: "赭山电子阅览室", Prefix: "zdz", Seats: 66, Rules: flat(2809)},
	}
}

// DefaultTable returns a table built from DefaultRooms.
func DefaultTable() *Table {
	return MustNewTable(DefaultRooms())
}

func flat(offset int) []OffsetRule {
	return []OffsetRule{{Min: 1, Offset: offset}}
}
