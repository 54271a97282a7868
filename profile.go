/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
)

func registerProfileHandlers(cfg *Config, mux *httprouter.Router) {
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handler("GET", cfg.Prefix+"/pprof/"+name, pprof.Handler(name))
	}

	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/", pprof.Index)
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/trace", pprof.Trace)

	logf(cfg, "SERVE: Registered pprof handlers under %s/pprof/", cfg.Prefix)
}
