package landscape

import "forestcore.io/internal/sim/geo"

// ApplyLightPattern rebuilds the light grid and the dominant height grid from
// the live trees. The light grid starts at full light (1) and every tree
// multiplies the cells under its stamp by (1 - weight*opacity).
func (l *Landscape) ApplyLightPattern() {
	l.light.Fill(1)
	l.heights.Fill(HeightCell{})

	l.EachTree(func(t *Tree) {
		if t.stamp == nil {
			t.SetupStamp()
		}
		if st := t.stamp; st != nil {
			opacity := t.Opacity
			if opacity < 0 {
				opacity = 0
			} else if opacity > 1 {
				opacity = 1
			}
			for dy := -st.Radius; dy <= st.Radius; dy++ {
				for dx := -st.Radius; dx <= st.Radius; dx++ {
					w := st.Weight(dx, dy)
					if w <= 0 {
						continue
					}
					if p := l.light.Ptr(t.Position.Add(geo.Cell{X: dx, Y: dy})); p != nil {
						*p *= 1 - w*opacity
					}
				}
			}
		}

		if h := l.heights.Ptr(l.heights.CellAt(l.light.CellCenter(t.Position))); h != nil {
			h.Count++
			if t.Height > h.Height {
				h.Height = t.Height
			}
		}
	})
}
