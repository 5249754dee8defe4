package frame

// builtinLayouts returns the stock strip layouts.
func builtinLayouts() []Layout {
	return []Layout{
		{
			ID: "vertical-1/1", Name: "Single", GridRows: 1, GridCols: 1,
			Canvas:   Size{toPx(50.5), toPx(76)},
			Photo:    Size{toPx(44), toPx(56)},
			Padding:  Padding{Top: toPx(4.25), Left: toPx((50.5 - 44) / 2), Right: toPx((50.5 - 44) / 2)},
			Datetime: &Anchor{X: toPx(50.5 - (50.5-44)/2), Y: toPx(76-4.25) + 24, Align: AlignRight},
		},
		{
			ID: "vertical-2/1", Name: "Double", GridRows: 2, GridCols: 1,
			Canvas:   Size{toPx(50.5), toPx(76)},
			Photo:    Size{toPx(44), toPx(32)},
			Padding:  Padding{Top: toPx((76 - 32*2) / 2), Left: toPx((50.5 - 44) / 2), Right: toPx((50.5 - 44) / 2)},
			Gap:      Gap{Vertical: toPx(1.125)},
			Datetime: &Anchor{X: toPx(50.5 - (50.5-44)/2), Y: toPx(74.5), Align: AlignRight},
		},
		{
			ID: "vertical-4/1", Name: "Classic strip", GridRows: 4, GridCols: 1,
			Canvas:   Size{toPx(50.5), toPx(152)},
			Photo:    Size{toPx(44.5), toPx(29.8)},
			Padding:  Padding{Top: toPx(4.25), Left: toPx((50.5 - 44.5) / 2), Right: toPx((50.5 - 44.5) / 2)},
			Gap:      Gap{Vertical: toPx(1.875)},
			Datetime: &Anchor{X: toPx(50.5 - (50.5-44)/2), Y: toPx(152-4.25) + 24, Align: AlignRight},
		},
		{
			ID: "vertical-2/2", Name: "Quad", GridRows: 2, GridCols: 2,
			Canvas:   Size{toPx(111.47), toPx(152)},
			Photo:    Size{toPx(49), toPx(62)},
			Padding:  Padding{Top: toPx(6.25), Left: toPx(5.5), Right: toPx(5.5)},
			Gap:      Gap{Vertical: toPx(2.25), Horizontal: toPx(2.5)},
			Datetime: &Anchor{X: toPx(111.47 - 5.5), Y: toPx(152-6.25) + 24, Align: AlignRight},
		},
		{
			ID: "vertical-3/2", Name: "Six grid", GridRows: 3, GridCols: 2,
			Canvas:   Size{toPx(97.69), toPx(152)},
			Photo:    Size{toPx(40.5), toPx(39.5)},
			Padding:  Padding{Top: toPx(5), Left: toPx(6.7), Right: toPx(6.7)},
			Gap:      Gap{Vertical: toPx(1.5), Horizontal: toPx(2.25)},
			Datetime: &Anchor{X: toPx(97.69 - 6.7), Y: toPx(152-5) + 24, Align: AlignRight},
		},
		{
			ID: "vertical-4/2", Name: "Eight grid", GridRows: 4, GridCols: 2,
			Canvas:   Size{toPx(100.42), toPx(152)},
			Photo:    Size{toPx(44.5), toPx(29.8)},
			Padding:  Padding{Top: toPx(5), Left: toPx(4.5), Right: toPx(4.5)},
			Gap:      Gap{Vertical: toPx(1.25), Horizontal: toPx(1.875)},
			Datetime: &Anchor{X: toPx(100.42 - 4.5), Y: toPx(152-5) + 24, Align: AlignRight},
		},
	}
}
