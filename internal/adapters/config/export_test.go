package config

var OverridesFrom = overridesFrom
