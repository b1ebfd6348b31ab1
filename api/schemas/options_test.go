package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionResolution(t *testing.T) {
	global := &GlobalOptions{
		Timeout:         5000,
		WaitUntil:       WaitUntilNetworkIdle2,
		TimeToWait:      250,
		WaitForSelector: "#app",
		InjectCSS:       "body{}",
	}

	t.Run("step overrides win", func(t *testing.T) {
		step := &StepOptions{
			Timeout:         1000,
			WaitUntil:       WaitUntilDOMContentLoaded,
			TimeToWait:      50,
			WaitForSelector: "#main",
			InjectCSS:       "p{}",
		}
		assert.Equal(t, time.Second, step.NavigationTimeout(global))
		assert.Equal(t, WaitUntilDOMContentLoaded, step.NavigationWaitUntil(global))
		assert.Equal(t, 50*time.Millisecond, step.EffectiveTimeToWait(global))
		assert.Equal(t, "#main", step.EffectiveWaitForSelector(global))
		assert.Equal(t, "p{}", step.EffectiveInjectCSS(global))
	})

	t.Run("unset step falls back to global", func(t *testing.T) {
		step := &StepOptions{}
		assert.Equal(t, 5*time.Second, step.NavigationTimeout(global))
		assert.Equal(t, WaitUntilNetworkIdle2, step.NavigationWaitUntil(global))
		assert.Equal(t, 250*time.Millisecond, step.EffectiveTimeToWait(global))
		assert.Equal(t, "#app", step.EffectiveWaitForSelector(global))
		assert.Equal(t, "body{}", step.EffectiveInjectCSS(global))
	})

	t.Run("defaults when nothing is set", func(t *testing.T) {
		var step *StepOptions
		empty := &GlobalOptions{}
		assert.Equal(t, DefaultNavigationTimeout, step.NavigationTimeout(empty))
		assert.Equal(t, WaitUntilLoad, step.NavigationWaitUntil(empty))
		assert.Equal(t, time.Duration(0), step.EffectiveTimeToWait(empty))
		assert.Empty(t, step.EffectiveWaitForSelector(empty))
	})
}

func TestGlobalOptionFlags(t *testing.T) {
	truth := true
	falsity := false

	assert.True(t, (&GlobalOptions{}).IsHeadless())
	assert.True(t, (&GlobalOptions{Headless: &truth}).IsHeadless())
	assert.False(t, (&GlobalOptions{Headless: &falsity}).IsHeadless())

	assert.True(t, (&GlobalOptions{}).IsPageCaching())
	assert.False(t, (&GlobalOptions{PageCaching: &falsity}).IsPageCaching())
}

func TestHeaderMap(t *testing.T) {
	g := &GlobalOptions{Headers: []Parameter{
		{Name: "Accept", Value: "text/html"},
		{Name: "Accept", Value: "application/json"},
	}}
	assert.Equal(t, map[string]string{"Accept": "application/json"}, g.HeaderMap())
	assert.Nil(t, (&GlobalOptions{}).HeaderMap())
}

func TestOutputPropertyDefaults(t *testing.T) {
	assert.Equal(t, "pageContent", (&PageContentSpec{}).PropertyName())
	assert.Equal(t, "body", (&PageContentSpec{DataPropertyName: "body"}).PropertyName())

	assert.Equal(t, "data", (&ScreenshotSpec{}).PropertyName())
	assert.Equal(t, ImagePNG, (&ScreenshotSpec{}).Type())
	assert.Equal(t, ImageWebP, (&ScreenshotSpec{ImageType: ImageWebP}).Type())

	assert.Equal(t, "data", (&PDFSpec{}).PropertyName())
	assert.Equal(t, 1.0, (&PDFSpec{}).EffectiveScale())
	assert.Equal(t, 0.5, (&PDFSpec{Scale: 0.5}).EffectiveScale())
}

func TestOutputEmpty(t *testing.T) {
	assert.True(t, (&Output{}).Empty())
	assert.False(t, (&Output{Screenshots: []ScreenshotSpec{{}}}).Empty())
}
