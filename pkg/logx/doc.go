// Package logx is todox's structured logger, a thin value-type wrapper over
// zerolog.
//
// The console sink prints a short timestamp and caller; the optional file
// sink writes JSON lines. Service.Apply swaps both when the config file is
// reloaded, so component loggers obtained earlier keep working.
package logx
