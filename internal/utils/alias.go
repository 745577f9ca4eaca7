package utils

import "math/rand"

var aliasAdj = []string{
	"Amber",
	"Bold",
	"Bright",
	"Calm",
	"Clever",
	"Cosmic",
	"Crimson",
	"Eager",
	"Gentle",
	"Golden",
	"Hidden",
	"Lively",
	"Lucky",
	"Mellow",
	"Misty",
	"Quick",
	"Quiet",
	"Rapid",
	"Silent",
	"Silver",
	"Steady",
	"Swift",
	"Vivid",
	"Wild",
}

var aliasNoun = []string{
	"Antelope",
	"Badger",
	"Condor",
	"Dolphin",
	"Falcon",
	"Fox",
	"Heron",
	"Ibex",
	"Jaguar",
	"Lynx",
	"Marten",
	"Otter",
	"Owl",
	"Panther",
	"Raven",
	"Salmon",
	"Sparrow",
	"Swan",
	"Tiger",
	"Wolf",
}

func RandChoice[T any](l []T) T {
	return l[rand.Intn(len(l))]
}

// GenAlias generates a human-friendly device name used when no name is
// configured.
func GenAlias() string {
	return RandChoice(aliasAdj) + " " + RandChoice(aliasNoun)
}
