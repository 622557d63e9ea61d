package main

// Compiled-in modules. Each registers itself with the core registry.
import (
	_ "github.com/vadash/openvault-sub001/internal/embedding"
	_ "github.com/vadash/openvault-sub001/internal/gateway"
	_ "github.com/vadash/openvault-sub001/modules/memory/sqlite"
	_ "github.com/vadash/openvault-sub001/modules/provider/openaicompat"
)
