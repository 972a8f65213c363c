// Package session wires the settings store and the bank-swap engine to a
// cartridge and sequences the operations that span both, such as handing
// control to a game.
package session

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/bankswap"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/logging"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/progress"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/settings"
)

// LaunchBank is the bank programs are entered through, at the top of the
// slot.
const LaunchBank = 0xFF

// Session is a booted cartridge.
type Session struct {
	driver  cart.Driver
	sram    cart.SRAM
	store   *settings.Store
	swapper bankswap.Swapper
	logger  hclog.Logger
}

type config struct {
	logger    hclog.Logger
	display   settings.Display
	indicator progress.Indicator
}

// Option configures Boot.
type Option func(*config)

// WithLogger sets the logger shared by every component.
func WithLogger(logger hclog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDisplay sets the display collaborator of the settings store.
func WithDisplay(d settings.Display) Option {
	return func(c *config) {
		c.display = d
	}
}

// WithIndicator sets the progress indicator shared by every component.
func WithIndicator(ind progress.Indicator) Option {
	return func(c *config) {
		c.indicator = ind
	}
}

// Boot loads settings and selects the bank-swap implementation the
// cartridge supports.
func Boot(driver cart.Driver, sram cart.SRAM, opts ...Option) (*Session, settings.LoadResult) {
	cfg := &config{
		logger:    hclog.NewNullLogger(),
		display:   settings.NopDisplay{},
		indicator: progress.Nop{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Session{
		driver: driver,
		sram:   sram,
		logger: cfg.logger,
	}
	s.store = settings.New(driver,
		settings.WithLogger(cfg.logger.Named(logging.ComponentSettings)),
		settings.WithDisplay(cfg.display),
		settings.WithIndicator(cfg.indicator),
	)

	if driver.SupportsSlots() {
		engine := bankswap.New(driver, sram, s.store,
			bankswap.WithLogger(cfg.logger.Named(logging.ComponentBankSwap)),
			bankswap.WithIndicator(cfg.indicator),
		)
		s.store.SetRelocator(engine)
		s.swapper = engine
	} else {
		s.logger.Info("🔌 Cartridge has no slot system, SRAM switching disabled")
		s.swapper = bankswap.NewStub(sram, cfg.logger.Named(logging.ComponentBankSwap))
	}

	res := s.store.Load()
	s.store.Refresh()

	s.logger.Debug("🚀 Booted", "source", res.Source, "launch_slot", driver.LaunchSlot(), "active_sram", s.store.Record().ActiveSRAMSlot)
	return s, res
}

// Store returns the settings store.
func (s *Session) Store() *settings.Store {
	return s.store
}

// Swapper returns the bank-swap implementation.
func (s *Session) Swapper() bankswap.Swapper {
	return s.swapper
}

// Engine returns the full bank-swap engine, if the cartridge supports one.
func (s *Session) Engine() (*bankswap.Engine, bool) {
	e, ok := s.swapper.(*bankswap.Engine)
	return e, ok
}

// SwitchSRAM makes target the resident SRAM slot and saves settings.
func (s *Session) SwitchSRAM(target settings.SRAMSlot) {
	s.swapper.SwitchToSlot(target)
	s.store.Save()
}

// EraseSRAM erases save data. Erasing the window while no slot is resident
// also resolves a pending first boot, since there is nothing left to adopt.
func (s *Session) EraseSRAM(target settings.SRAMSlot) {
	s.swapper.Erase(target)
	rec := s.store.Record()
	if target == settings.None && rec.ActiveSRAMSlot == settings.FirstBoot {
		rec.ActiveSRAMSlot = settings.None
		s.store.MarkChanged()
	}
	s.store.Save()
}

// ResetFirstBoot forgets which slot the SRAM contents belong to. The next
// switch adopts them without a backup. The state is not persisted: a save
// records no resident slot.
func (s *Session) ResetFirstBoot() {
	rec := s.store.Record()
	if rec.ActiveSRAMSlot == settings.FirstBoot {
		return
	}
	s.logger.Info("🔓 SRAM contents will be adopted by the next switch", "previous", rec.ActiveSRAMSlot)
	rec.ActiveSRAMSlot = settings.FirstBoot
	s.store.MarkChanged()
}

// LaunchOption adjusts Launch.
type LaunchOption func(*launchConfig)

type launchConfig struct {
	usesSave bool
	sram     *settings.SRAMSlot
}

// WithoutSaveData launches a program that does not use SRAM. The resident
// slot is kept.
func WithoutSaveData() LaunchOption {
	return func(c *launchConfig) {
		c.usesSave = false
	}
}

// WithSRAMSlot overrides the SRAM slot chosen from the mapping, for games
// bound to more than one.
func WithSRAMSlot(slot settings.SRAMSlot) LaunchOption {
	return func(c *launchConfig) {
		c.sram = &slot
	}
}

// Launch hands control to the program in a game slot. The game's SRAM slot
// is made resident first, a lingering first boot is resolved and settings
// are saved. The driver locks flash again before the handover.
func (s *Session) Launch(gameSlot int, opts ...LaunchOption) error {
	if gameSlot < 0 || gameSlot >= cart.GameSlots {
		return fmt.Errorf("game slot %d out of range", gameSlot)
	}
	if !s.driver.SupportsSlots() {
		return fmt.Errorf("launching slot %d: %w", gameSlot, cferrors.ErrNotSupported)
	}

	cfg := &launchConfig{usesSave: true}
	for _, opt := range opts {
		opt(cfg)
	}

	rec := s.store.Record()
	if cfg.usesSave {
		target := rec.SRAMSlotForGame(gameSlot)
		if cfg.sram != nil {
			target = *cfg.sram
		}
		s.logger.Info("🎮 Preparing launch", "slot", gameSlot, "sram", target)
		s.swapper.SwitchToSlot(target)
	}
	if rec.ActiveSRAMSlot == settings.FirstBoot {
		rec.ActiveSRAMSlot = settings.None
		s.store.MarkChanged()
	}

	s.store.Save()

	s.driver.Unlock()
	if err := s.driver.Launch(uint16(gameSlot), LaunchBank); err != nil {
		s.driver.Lock()
		return fmt.Errorf("launching slot %d: %w", gameSlot, err)
	}
	s.logger.Info("🚀 Launched", "slot", gameSlot)
	return nil
}
