package sensors

import (
	"errors"
	"fmt"
	"sort"
)

// Direction is one position of the vane's resistor ladder
type Direction struct {
	Name  string
	Angle float64
	Ohms  int
}

type band struct {
	name     string
	angle    float64
	center   int
	min, max int
}

// VaneTable maps ADC counts to vane angles. Each direction owns the counts
// from the midpoint below its nominal value to the midpoint above it.
type VaneTable struct {
	bands []band
}

// NewVaneTable computes the band of each direction for a divider fed with vin
// through a vdivider ohm resistor
func NewVaneTable(vin float64, vdivider int, dirs []Direction) (*VaneTable, error) {
	if len(dirs) == 0 {
		return nil, errors.New("wind vane has no directions")
	}
	if vin <= 0 || vdivider <= 0 {
		return nil, fmt.Errorf("wind vane needs positive vin and vdivider, got %v and %d", vin, vdivider)
	}

	bands := make([]band, len(dirs))
	for i, d := range dirs {
		if d.Ohms <= 0 {
			return nil, fmt.Errorf("wind vane direction %q has non-positive resistance", d.Name)
		}
		vout := vin * float64(d.Ohms) / float64(vdivider+d.Ohms)
		bands[i] = band{
			name:   d.Name,
			angle:  d.Angle,
			center: int(vout * ADCMax / ADCVRef),
		}
	}

	sort.Slice(bands, func(i, j int) bool { return bands[i].center < bands[j].center })

	for i := 1; i < len(bands); i++ {
		if bands[i].center == bands[i-1].center {
			return nil, fmt.Errorf("wind vane directions %q and %q read the same ADC value", bands[i-1].name, bands[i].name)
		}
		half := (bands[i-1].center + bands[i].center) / 2
		bands[i-1].max = half
		bands[i].min = half + 1
	}
	bands[0].min = 0
	bands[len(bands)-1].max = ADCMax

	return &VaneTable{bands: bands}, nil
}

// Angle returns the direction for an ADC count
func (t *VaneTable) Angle(adc int) (float64, bool) {
	i := sort.Search(len(t.bands), func(i int) bool { return t.bands[i].max >= adc })
	if i == len(t.bands) || adc < t.bands[i].min {
		return 0, false
	}
	return t.bands[i].angle, true
}

// Centers returns the nominal ADC count of every direction in ascending order
func (t *VaneTable) Centers() []int {
	out := make([]int, len(t.bands))
	for i, b := range t.bands {
		out[i] = b.center
	}
	return out
}
