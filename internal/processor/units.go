package processor

import (
	"fmt"
	"strings"

	"github.com/banshee-data/carhack/internal/units"
)

// Units republishes a speed series in other units, one series per unit:
// <name>.kph, <name>.mph.
//
// Config keys: input (default radar.speed, m/s) and units (comma separated,
// default "kph,mph").
type Units struct {
	subs    subscriptions
	name    string
	target  Target
	targets []string
}

// NewUnits subscribes to the input series.
func NewUnits(target Target, deps Deps) (Processor, error) {
	p := &Units{subs: subscriptions{target: target}, name: deps.Name, target: target}
	for _, u := range strings.Split(deps.Settings.GetString("units", "kph,mph"), ",") {
		unit, err := units.Parse(u)
		if err != nil {
			return nil, err
		}
		p.targets = append(p.targets, unit)
	}

	input := deps.Settings.GetString("input", "radar.speed")
	p.subs.subscribe(input, p.handle)
	return p, nil
}

func (p *Units) handle(ts float64, value any) error {
	mps, err := toFloat(value)
	if err != nil {
		return fmt.Errorf("units: %w", err)
	}
	for _, unit := range p.targets {
		if err := p.target.Publish(p.name+"."+unit, ts, units.ConvertSpeed(mps, unit)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Units) Close() error {
	return p.subs.unsubscribeAll()
}
