package pump

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// Manufacturer is a syringe manufacturer code understood by "syrmanu".
type Manufacturer string

const (
	AirTiteHSWNormJect       Manufacturer = "air"
	BectonDickinsonGlass     Manufacturer = "bdg"
	BectonDickinsonPlastipak Manufacturer = "bdp"
	CadenceScienceMicroMate  Manufacturer = "cad"
	ColeParmerStainlessSteel Manufacturer = "cps"
	HamiltonGlass700         Manufacturer = "hm1"
	HamiltonGlass1000        Manufacturer = "hm2"
	HamiltonGlass1700        Manufacturer = "hm3"
	HamiltonGlass7000        Manufacturer = "hm4"
	Hoshi                    Manufacturer = "hos"
	KDSGlass                 Manufacturer = "kgl"
	Natsume                  Manufacturer = "nat"
	Nipro                    Manufacturer = "nip"
	SGEScientificGlass       Manufacturer = "sge"
	SherwoodMonojectPlastic  Manufacturer = "smp"
	StainlessSteel           Manufacturer = "sst"
	Terumo                   Manufacturer = "ter"
	Top                      Manufacturer = "top"
)

var manufacturerNames = map[Manufacturer]string{
	AirTiteHSWNormJect:       "Air-Tite HSW Norm-Ject",
	BectonDickinsonGlass:     "Becton Dickinson glass",
	BectonDickinsonPlastipak: "Becton Dickinson Plasti-pak",
	CadenceScienceMicroMate:  "Cadence Science Micro-Mate glass",
	ColeParmerStainlessSteel: "Cole-Parmer stainless steel",
	HamiltonGlass700:         "Hamilton 700 glass",
	HamiltonGlass1000:        "Hamilton 1000 glass",
	HamiltonGlass1700:        "Hamilton 1700 glass",
	HamiltonGlass7000:        "Hamilton 7000 glass",
	Hoshi:                    "Hoshi",
	KDSGlass:                 "KD Scientific glass",
	Natsume:                  "Natsume",
	Nipro:                    "Nipro",
	SGEScientificGlass:       "SGE Scientific Glass Engineering",
	SherwoodMonojectPlastic:  "Sherwood Monoject plastic",
	StainlessSteel:           "Stainless steel",
	Terumo:                   "Terumo",
	Top:                      "Top",
}

// Manufacturers returns every known manufacturer code, sorted.
func Manufacturers() []Manufacturer {
	out := make([]Manufacturer, 0, len(manufacturerNames))
	for m := range manufacturerNames {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether m is a known manufacturer code.
func (m Manufacturer) Valid() bool {
	_, ok := manufacturerNames[m]
	return ok
}

// Name returns a human-readable manufacturer name.
func (m Manufacturer) Name() string {
	if name, ok := manufacturerNames[m]; ok {
		return name
	}
	return string(m)
}

// SyringeInfo is the pump's answer to "syrmanu".
type SyringeInfo struct {
	Manufacturer Manufacturer
	Volume       Quantity
	Diameter     Quantity
}

// Syringe manages the syringe geometry the pump uses to convert volume to travel.
type Syringe struct {
	driver *protocol.Driver
}

// Diameter returns the configured inner diameter.
func (s *Syringe) Diameter(ctx context.Context) (Quantity, error) {
	resp, err := s.driver.Send(ctx, "diameter")
	if err != nil {
		return Quantity{}, err
	}
	return ParseQuantity(resp.FirstLine())
}

// SetDiameter sets the inner diameter in millimetres.
func (s *Syringe) SetDiameter(ctx context.Context, mm float64) error {
	if mm <= 0 {
		return protocol.NewValidationError("diameter", "diameter must be positive, got %v", mm)
	}
	_, err := s.driver.Send(ctx, "diameter "+formatNumber(mm))
	return err
}

// Volume returns the configured syringe volume.
func (s *Syringe) Volume(ctx context.Context) (Quantity, error) {
	resp, err := s.driver.Send(ctx, "svolume")
	if err != nil {
		return Quantity{}, err
	}
	return ParseQuantity(resp.FirstLine())
}

// SetVolume sets the syringe volume.
func (s *Syringe) SetVolume(ctx context.Context, volume Quantity) error {
	if err := checkVolume("svolume", volume); err != nil {
		return err
	}
	_, err := s.driver.Send(ctx, fmt.Sprintf("svolume %s", volume.Normalize()))
	return err
}

// Manufacturer returns the configured manufacturer, volume and diameter.
func (s *Syringe) Manufacturer(ctx context.Context) (SyringeInfo, error) {
	resp, err := s.driver.Send(ctx, "syrmanu")
	if err != nil {
		return SyringeInfo{}, err
	}

	// e.g. "bdp, 10 ml, 14.57 mm"
	parts := strings.Split(resp.FirstLine(), ",")
	if len(parts) != 3 {
		return SyringeInfo{}, fmt.Errorf("unexpected syringe response %q", resp.FirstLine())
	}
	volume, err := ParseQuantity(parts[1])
	if err != nil {
		return SyringeInfo{}, err
	}
	diameter, err := ParseQuantity(parts[2])
	if err != nil {
		return SyringeInfo{}, err
	}
	return SyringeInfo{
		Manufacturer: Manufacturer(strings.TrimSpace(parts[0])),
		Volume:       volume,
		Diameter:     diameter,
	}, nil
}

// SetManufacturer selects a syringe from the pump's table. When volume is
// nil the pump keeps its current volume. If the pump does not know the
// combination, the volumes it offers for the manufacturer are queried and
// reported in the returned ErrInvalidArgument.
func (s *Syringe) SetManufacturer(ctx context.Context, m Manufacturer, volume *Quantity) error {
	if !m.Valid() {
		return protocol.NewValidationError("syrmanu", "unknown manufacturer code %q", m)
	}
	cmd := "syrmanu " + string(m)
	if volume != nil {
		if err := checkVolume("syrmanu", *volume); err != nil {
			return err
		}
		cmd += " " + volume.Normalize().String()
	}

	_, err := s.driver.Send(ctx, cmd)
	var cmdErr *protocol.CommandError
	if !errors.As(err, &cmdErr) || !strings.Contains(strings.Join(cmdErr.Response.Message, "\n"), "Unknown syringe") {
		return err
	}

	options, qerr := s.driver.Send(ctx, "syrmanu "+string(m)+" ?")
	if qerr != nil {
		return fmt.Errorf("unknown syringe, and listing valid volumes failed: %w", qerr)
	}
	return protocol.NewValidationError("syrmanu", "unknown syringe; valid volumes are:\n%s", strings.Join(options.Message, "\n"))
}
