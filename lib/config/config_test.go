// config_test.go tests config files
package config

import (
	"testing"
)

// fileToTest is a relative path to the configuration file to test (ie. drb/cmd/conf.json)
var fileToTest string = "../../cmd/conf.json"

// TestConfig extracts config from a file and checks values loaded
func TestConfig(t *testing.T) {
	//extract configuration
	conf, err := ExtractConfiguration(fileToTest)
	if err != nil {
		t.Errorf("Error reading config file:%e\n", err)
	} else {
		// lets check the port
		if conf.Port != "3030" {
			t.Errorf("config port is not the expected %s", conf.Port)
		}
		// and the token pair
		if conf.Token != "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48" {
			t.Errorf("source token does not match the expected %s", conf.Token)
		}
		if conf.Target != "0x6c3ea9036406852006290770BEdFcAbA0e23A0e8" {
			t.Errorf("target token does not match the expected %s", conf.Target)
		}
		// and the settlement venue
		if conf.Venue.Type != "router" || conf.Venue.PoolFee != 3000 {
			t.Errorf("venue does not match the expected %+v", conf.Venue)
		}
	}
}

// TestConfigDefaults checks the defaults apply when no config file is given
func TestConfigDefaults(t *testing.T) {
	conf, err := ExtractConfiguration("")
	if err != nil {
		t.Errorf("Error extracting default config:%e\n", err)
	}
	if conf.DBType != DBTypeDefault {
		t.Errorf("dbtype is not the expected default %s", conf.DBType)
	}
	if conf.SlippageBps != SlippageDefault {
		t.Errorf("slippage is not the expected default %d", conf.SlippageBps)
	}
	if conf.KeySource != KeySourceDefault {
		t.Errorf("key source is not the expected default %s", conf.KeySource)
	}
}
