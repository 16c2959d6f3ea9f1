// Package simulator provides an in-process model of a Legato syringe pump
// that speaks the same prompt-terminated protocol over a protocol.Transport.
package simulator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
	"github.com/Ddedalus/syringe-pump/internal/pump"
)

// Config describes the simulated pump.
type Config struct {
	Address      int
	Firmware     string
	SerialNumber string

	// RejectNVRAMNone models firmware revisions that only know "nvram off".
	RejectNVRAMNone bool
	// RejectNVRAMOff models firmware revisions that only know "nvram none".
	RejectNVRAMOff bool
}

// DefaultConfig returns a pump at address 0 with a 10 ml Plasti-pak syringe.
func DefaultConfig() Config {
	return Config{
		Firmware:     "Legato100 3.0.8",
		SerialNumber: "SIM0001",
	}
}

// syringe volumes offered per manufacturer, in ml.
var syringeTable = map[pump.Manufacturer][]float64{
	pump.BectonDickinsonPlastipak: {1, 3, 5, 10, 20, 30, 60},
	pump.BectonDickinsonGlass:     {0.5, 1, 2, 5, 10, 20, 30, 50, 100},
	pump.HamiltonGlass1000:        {0.5, 1, 2.5, 5, 10, 25, 50},
	pump.Terumo:                   {1, 3, 5, 10, 20, 30, 50},
}

// Pump is a simulated pump. It implements protocol.Transport and Flusher.
type Pump struct {
	mu     sync.Mutex
	cfg    Config
	outbox bytes.Buffer
	writes []string

	pollMode   bool
	nvram      string
	address    int
	brightness int
	force      int
	qsMode     string
	clock      string

	irate, wrate  float64 // ml/min
	iramp, wramp  *ramp
	ivolume       float64 // ml
	wvolume       float64 // ml
	targetVolume  *float64
	targetTime    *time.Duration
	diameter      float64 // mm
	syringeVolume float64 // ml
	manufacturer  pump.Manufacturer
	running       protocol.Direction
	stalled       bool
	limit         protocol.Direction
	targetReached bool
}

type ramp struct {
	start, end float64 // ml/min
	seconds    float64
}

var (
	_ protocol.Transport = (*Pump)(nil)
	_ protocol.Flusher   = (*Pump)(nil)
)

// New creates a simulated pump in its power-on state.
func New(cfg Config) *Pump {
	return &Pump{
		cfg:           cfg,
		nvram:         "on",
		address:       cfg.Address,
		brightness:    50,
		force:         50,
		qsMode:        "i",
		irate:         1,
		wrate:         1,
		diameter:      14.57,
		syringeVolume: 10,
		manufacturer:  pump.BectonDickinsonPlastipak,
	}
}

// Write accepts one command line and queues the pump's reply.
func (p *Pump) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, line := range strings.Split(string(b), protocol.LineEnding) {
		if line == "" {
			continue
		}
		p.writes = append(p.writes, line)
		p.handle(line)
	}
	return nil
}

// ReadUntil returns queued output up to and including delim. When no complete
// frame is queued it fails with os.ErrDeadlineExceeded, like a serial read
// timeout.
func (p *Pump) ReadUntil(ctx context.Context, delim byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	i := bytes.IndexByte(p.outbox.Bytes(), delim)
	if i < 0 {
		return nil, fmt.Errorf("simulator: no response pending: %w", os.ErrDeadlineExceeded)
	}
	return p.outbox.Next(i + 1), nil
}

// Flush discards queued output.
func (p *Pump) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outbox.Reset()
	return nil
}

// Writes returns every command line received so far.
func (p *Pump) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

// Stall makes the motor report a stall until the next stop.
func (p *Pump) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = true
	p.running = protocol.DirectionNone
}

// HitLimit makes the motor report the limit switch for dir until the next stop.
func (p *Pump) HitLimit(dir protocol.Direction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = dir
	p.running = protocol.DirectionNone
}

// Advance moves the plunger as if d had elapsed at the current rate.
func (p *Pump) Advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var counter *float64
	var rate float64
	switch p.running {
	case protocol.DirectionInfuse:
		counter, rate = &p.ivolume, p.irate
	case protocol.DirectionWithdraw:
		counter, rate = &p.wvolume, p.wrate
	default:
		return
	}

	*counter += rate * d.Minutes()
	if p.targetVolume != nil && *counter >= *p.targetVolume {
		*counter = *p.targetVolume
		p.running = protocol.DirectionNone
		p.targetReached = true
	}
}

// Inject queues raw bytes as if the pump had sent them unprompted.
func (p *Pump) Inject(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outbox.WriteString(raw)
}

func (p *Pump) prompt() string {
	var status string
	switch {
	case p.stalled:
		status = protocol.PromptStalled
	case p.limit == protocol.DirectionInfuse:
		status = protocol.PromptInfuseLimit
	case p.limit == protocol.DirectionWithdraw:
		status = protocol.PromptWithdrawLimit
	case p.targetReached:
		status = protocol.PromptTargetReached
	case p.running == protocol.DirectionInfuse:
		status = protocol.PromptInfusing
	case p.running == protocol.DirectionWithdraw:
		status = protocol.PromptWithdrawing
	default:
		status = protocol.PromptIdle
	}
	if p.address != 0 {
		return fmt.Sprintf("%02d%s", p.address, status)
	}
	return status
}

// reply queues message lines followed by the prompt. Without poll mode the
// pump does not terminate its output with XON.
func (p *Pump) reply(lines ...string) {
	p.outbox.WriteString(protocol.LineEnding)
	for _, line := range lines {
		p.outbox.WriteString(line)
		p.outbox.WriteString(protocol.LineEnding)
	}
	p.outbox.WriteString(p.prompt())
	if p.pollMode {
		p.outbox.WriteByte(protocol.XON)
	}
}

func (p *Pump) commandError(cmd string) {
	p.reply("Command error: " + cmd)
}

func (p *Pump) argumentError(arg string) {
	p.reply("Argument error: " + arg)
}

// handle parses "[NN][@]command args" and dispatches it.
func (p *Pump) handle(line string) {
	if len(line) >= 2 && isDigit(line[0]) && isDigit(line[1]) {
		addr, _ := strconv.Atoi(line[:2])
		if addr != p.address {
			return
		}
		line = line[2:]
	}
	line = strings.TrimPrefix(line, "@")

	fields := strings.Fields(line)
	if len(fields) == 0 {
		p.reply()
		return
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "poll":
		p.handlePoll(args)
	case "nvram":
		p.handleNVRAM(args)
	case "irun", "wrun":
		p.handleRun(cmd)
	case "stp":
		p.running = protocol.DirectionNone
		p.stalled = false
		p.limit = protocol.DirectionNone
		p.targetReached = false
		p.reply()
	case "irate":
		p.handleRate(&p.irate, args)
	case "wrate":
		p.handleRate(&p.wrate, args)
	case "iramp":
		p.handleRamp(&p.iramp, args)
	case "wramp":
		p.handleRamp(&p.wramp, args)
	case "ivolume":
		p.reply(volumeText(p.ivolume))
	case "wvolume":
		p.reply(volumeText(p.wvolume))
	case "civolume":
		p.ivolume = 0
		p.reply()
	case "cwvolume":
		p.wvolume = 0
		p.reply()
	case "tvolume":
		p.handleTargetVolume(args)
	case "ctvolume":
		p.targetVolume = nil
		p.targetReached = false
		p.reply()
	case "ttime":
		p.handleTargetTime(args)
	case "cttime":
		p.targetTime = nil
		p.iramp, p.wramp = nil, nil
		p.reply()
	case "diameter":
		p.handleDiameter(args)
	case "svolume":
		p.handleSyringeVolume(args)
	case "syrmanu":
		p.handleManufacturer(args)
	case "dim":
		p.handlePercent(&p.brightness, args)
	case "force":
		p.handlePercent(&p.force, args)
	case "addr":
		p.handleAddress(args)
	case "time":
		p.clock = strings.Join(args, " ")
		p.reply(p.clock)
	case "version":
		p.reply(
			"Firmware: "+p.cfg.Firmware,
			fmt.Sprintf("Pump address: %d", p.address),
			"Serial number: "+p.cfg.SerialNumber,
		)
	case "load":
		p.handleLoad(args)
	default:
		p.commandError(cmd)
	}
}

func (p *Pump) handlePoll(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		p.argumentError(strings.Join(args, " "))
		return
	}
	p.pollMode = args[0] == "on"
	p.reply()
}

func (p *Pump) handleNVRAM(args []string) {
	if len(args) == 0 {
		p.reply("NVRAM " + p.nvram)
		return
	}
	switch {
	case args[0] == "none" && !p.cfg.RejectNVRAMNone,
		args[0] == "off" && !p.cfg.RejectNVRAMOff,
		args[0] == "on":
		p.nvram = args[0]
		p.reply()
	default:
		p.argumentError(args[0])
	}
}

func (p *Pump) handleRun(cmd string) {
	dir := protocol.DirectionInfuse
	if cmd == "wrun" {
		dir = protocol.DirectionWithdraw
	}
	if p.qsMode != "iw" && p.qsMode != "wi" && p.qsMode != cmd[:1] {
		p.commandError(cmd)
		return
	}
	p.stalled = false
	p.limit = protocol.DirectionNone
	p.targetReached = false
	if p.targetVolume != nil {
		counter := p.ivolume
		if dir == protocol.DirectionWithdraw {
			counter = p.wvolume
		}
		if counter >= *p.targetVolume {
			p.targetReached = true
			p.reply()
			return
		}
	}
	p.running = dir
	p.reply()
}

func (p *Pump) handleRate(rate *float64, args []string) {
	if len(args) == 0 {
		p.reply(rateText(*rate))
		return
	}
	if args[0] == "lim" {
		p.reply(".0404 nl/min to 26.0035 ml/min")
		return
	}
	q, ok := parseArg(args)
	if !ok || q.BaseUnit() != pump.UnitLitrePerMinute {
		p.argumentError(strings.Join(args, " "))
		return
	}
	ml, _ := q.In("ml/min")
	if ml <= 0 || ml > 26.0035 {
		p.reply("Argument error: "+strings.Join(args, " "), "Out of range")
		return
	}
	*rate = ml
	p.reply()
}

func (p *Pump) handleRamp(r **ramp, args []string) {
	if len(args) == 0 {
		if *r == nil {
			p.reply("Ramp not set up.")
			return
		}
		p.reply(fmt.Sprintf("%s to %s in %s seconds",
			rateText((*r).start), rateText((*r).end), strconv.FormatFloat((*r).seconds, 'f', -1, 64)))
		return
	}
	if len(args) != 5 {
		p.argumentError(strings.Join(args, " "))
		return
	}
	start, ok1 := parseArg(args[0:2])
	end, ok2 := parseArg(args[2:4])
	seconds, err := strconv.ParseFloat(args[4], 64)
	if !ok1 || !ok2 || err != nil || seconds <= 0 {
		p.argumentError(strings.Join(args, " "))
		return
	}
	s, err1 := start.In("ml/min")
	e, err2 := end.In("ml/min")
	if err1 != nil || err2 != nil {
		p.argumentError(strings.Join(args, " "))
		return
	}
	*r = &ramp{start: s, end: e, seconds: seconds}
	p.reply()
}

func (p *Pump) handleTargetVolume(args []string) {
	if len(args) == 0 {
		if p.targetVolume == nil {
			p.reply("Target volume not set")
			return
		}
		p.reply(volumeText(*p.targetVolume))
		return
	}
	q, ok := parseArg(args)
	if !ok || q.BaseUnit() != pump.UnitLitre {
		p.argumentError(strings.Join(args, " "))
		return
	}
	ml, _ := q.In("ml")
	if ml <= 0 || ml > p.syringeVolume {
		p.reply("Argument error: "+strings.Join(args, " "), "Target volume out of range")
		return
	}
	p.targetVolume = &ml
	p.reply()
}

func (p *Pump) handleTargetTime(args []string) {
	if len(args) == 0 {
		if p.targetTime == nil {
			p.reply("Target time not set")
			return
		}
		p.reply(timeText(*p.targetTime))
		return
	}
	d, ok := parseTime(args[0])
	if !ok || d > pump.MaxTargetTime {
		p.argumentError(args[0])
		return
	}
	p.targetTime = &d
	p.reply()
}

func (p *Pump) handleDiameter(args []string) {
	if len(args) == 0 {
		p.reply(strconv.FormatFloat(p.diameter, 'f', -1, 64) + " mm")
		return
	}
	mm, err := strconv.ParseFloat(args[0], 64)
	if err != nil || mm <= 0 || mm > 50 {
		p.argumentError(args[0])
		return
	}
	p.diameter = mm
	p.reply()
}

func (p *Pump) handleSyringeVolume(args []string) {
	if len(args) == 0 {
		p.reply(volumeText(p.syringeVolume))
		return
	}
	q, ok := parseArg(args)
	if !ok || q.BaseUnit() != pump.UnitLitre {
		p.argumentError(strings.Join(args, " "))
		return
	}
	ml, _ := q.In("ml")
	if ml <= 0 {
		p.argumentError(strings.Join(args, " "))
		return
	}
	p.syringeVolume = ml
	p.reply()
}

func (p *Pump) handleManufacturer(args []string) {
	if len(args) == 0 {
		p.reply(fmt.Sprintf("%s, %s, %s mm", p.manufacturer, volumeText(p.syringeVolume),
			strconv.FormatFloat(p.diameter, 'f', -1, 64)))
		return
	}
	m := pump.Manufacturer(args[0])
	volumes, known := syringeTable[m]
	if !m.Valid() {
		p.argumentError(args[0])
		return
	}
	if len(args) == 2 && args[1] == "?" {
		lines := make([]string, 0, len(volumes))
		for _, v := range volumes {
			lines = append(lines, volumeText(v))
		}
		p.reply(lines...)
		return
	}

	volume := p.syringeVolume
	if len(args) >= 3 {
		q, ok := parseArg(args[1:3])
		if !ok || q.BaseUnit() != pump.UnitLitre {
			p.argumentError(strings.Join(args[1:], " "))
			return
		}
		volume, _ = q.In("ml")
	}
	if !known || !containsVolume(volumes, volume) {
		p.reply("Argument error: "+strings.Join(args, " "), "Unknown syringe")
		return
	}
	p.manufacturer = m
	p.syringeVolume = volume
	p.reply()
}

func (p *Pump) handlePercent(target *int, args []string) {
	if len(args) == 0 {
		p.reply(fmt.Sprintf("%d%%", *target))
		return
	}
	v, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
	if err != nil || v < 0 || v > 100 {
		p.argumentError(args[0])
		return
	}
	*target = v
	p.reply()
}

func (p *Pump) handleAddress(args []string) {
	if len(args) == 0 {
		p.reply(fmt.Sprintf("Pump address: %d", p.address))
		return
	}
	addr, err := strconv.Atoi(args[0])
	if err != nil || addr < 0 || addr > protocol.MaxAddress {
		p.argumentError(args[0])
		return
	}
	p.address = addr
	p.reply(fmt.Sprintf("Pump address set to %d", addr))
}

func (p *Pump) handleLoad(args []string) {
	if len(args) == 0 {
		p.reply("qs " + p.qsMode)
		return
	}
	if len(args) != 2 || args[0] != "qs" {
		p.argumentError(strings.Join(args, " "))
		return
	}
	switch args[1] {
	case "i", "w", "iw", "wi":
		p.qsMode = args[1]
		p.reply()
	default:
		p.argumentError(args[1])
	}
}

func parseArg(args []string) (pump.Quantity, bool) {
	if len(args) < 2 {
		return pump.Quantity{}, false
	}
	q, err := pump.ParseQuantity(args[0] + " " + args[1])
	return q, err == nil
}

func parseTime(s string) (time.Duration, bool) {
	if !strings.Contains(s, ":") {
		secs, err := strconv.Atoi(s)
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	var total time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		v, err := strconv.Atoi(parts[i])
		if err != nil || v < 0 {
			return 0, false
		}
		total += time.Duration(v) * unit
	}
	return total, true
}

func rateText(mlPerMin float64) string {
	return pump.Q(mlPerMin, "ml/min").Normalize().String()
}

func volumeText(ml float64) string {
	if ml == 0 {
		return "0 ul"
	}
	return pump.Q(ml, "ml").Normalize().String()
}

func timeText(d time.Duration) string {
	secs := int(d / time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", secs)
	case d < time.Hour:
		return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
	default:
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	}
}

func containsVolume(volumes []float64, v float64) bool {
	for _, candidate := range volumes {
		if pump.Q(candidate, "ml").Equal(pump.Q(v, "ml")) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
