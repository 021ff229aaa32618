package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/raptor"
)

func TestParseTargetsRequiresAtLeastOne(t *testing.T) {
	_, err := parseTargets(nil)
	require.Error(t, err)
}

func TestParseTargetsDefaultsNonTransitToUnreached(t *testing.T) {
	targets, err := parseTargets([]string{"1.0,2.0"})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, 1.0, targets[0].lat)
	require.Equal(t, 2.0, targets[0].lon)
	require.EqualValues(t, raptor.Unreached, targets[0].nonTransitTravelTimeSeconds)
}

func TestParseTargetsWithExplicitNonTransit(t *testing.T) {
	targets, err := parseTargets([]string{"1.0,2.0,900"})
	require.NoError(t, err)
	require.EqualValues(t, 900, targets[0].nonTransitTravelTimeSeconds)
}

func TestParseTargetsRejectsMalformedSpec(t *testing.T) {
	_, err := parseTargets([]string{"not-a-number"})
	require.Error(t, err)
}

func TestParseTargetsMultipleEntries(t *testing.T) {
	targets, err := parseTargets([]string{"1.0,2.0", "3.0,4.0,600"})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, 3.0, targets[1].lat)
}
