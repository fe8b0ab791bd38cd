package estimator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/andresmejia3/trackpose/internal/joints"
)

var ErrUnknownMethod = errors.New("unknown pose method")

// Method is one supported top-down model. Config and Checkpoint are relative to the model data dir.
type Method struct {
	Name       string
	Config     string
	Checkpoint string
	NumJoints  int
	Variant    string // joint dictionary naming the leading joints
}

const (
	HRNetW48COCO               = "HRNet_W48_COCO"
	HRFormerCOCO               = "HRFormer_COCO"
	HRNetW48COCOWholeBody      = "HRNet_W48_COCOWholeBody"
	HRNetTCFormerCOCOWholeBody = "HRNet_TCFormer_COCOWholeBody"
	HRNetW48Halpe              = "HRNet_W48_HALPE"
	RTMPoseCOCOWholeBody       = "RTMPose_coco-wholebody"
	RTMPoseCocktail14          = "RTMPose_Cocktail14"

	DefaultMethod = HRNetW48COCO
)

// rtmpose models live in their own folder, fetched by the mmpose download tooling.
func rtmpose(name, configID, checkpoint string) Method {
	dir := filepath.Join("mmpose", name)
	return Method{
		Name:       name,
		Config:     filepath.Join(dir, configID+".py"),
		Checkpoint: filepath.Join(dir, checkpoint),
		NumJoints:  133,
		Variant:    joints.MMPoseWholebody,
	}
}

var methods = map[string]Method{
	HRNetW48COCO: {
		Name:       HRNetW48COCO,
		Config:     "mmpose/config/top_down/darkpose/coco/hrnet_w48_coco_384x288_dark.py",
		Checkpoint: "mmpose/checkpoints/hrnet_w48_coco_384x288_dark-e881a4b6_20210203.pth",
		NumJoints:  17,
		Variant:    joints.MMPose,
	},
	HRFormerCOCO: {
		Name:       HRFormerCOCO,
		Config:     "mmpose/config/top_down/hrformer_base_coco_384x288.py",
		Checkpoint: "mmpose/checkpoints/hrformer_base_coco_384x288-ecf0758d_20220316.pth",
		NumJoints:  17,
		Variant:    joints.MMPose,
	},
	HRNetW48COCOWholeBody: {
		Name:       HRNetW48COCOWholeBody,
		Config:     "mmpose/config/coco-wholebody/hrnet_w48_coco_wholebody_384x288_dark_plus.py",
		Checkpoint: "mmpose/checkpoints/hrnet_w48_coco_wholebody_384x288_dark-f5726563_20200918.pth",
		NumJoints:  133,
		Variant:    joints.MMPoseWholebody,
	},
	HRNetTCFormerCOCOWholeBody: {
		Name:       HRNetTCFormerCOCOWholeBody,
		Config:     "mmpose/config/coco-wholebody/tcformer_coco_wholebody_256x192.py",
		Checkpoint: "mmpose/checkpoints/tcformer_coco-wholebody_256x192-a0720efa_20220627.pth",
		NumJoints:  133,
		Variant:    joints.MMPoseWholebody,
	},
	HRNetW48Halpe: {
		Name:       HRNetW48Halpe,
		Config:     "mmpose/config/halpe/hrnet_w48_halpe_384x288_dark_plus.py",
		Checkpoint: "mmpose/checkpoints/hrnet_w48_halpe_384x288_dark_plus-d13c2588_20211021.pth",
		NumJoints:  136,
		Variant:    joints.MMPoseHalpe,
	},
	RTMPoseCOCOWholeBody: rtmpose(RTMPoseCOCOWholeBody,
		"rtmpose-l_8xb32-270e_coco-wholebody-384x288",
		"rtmpose-l_simcc-coco-wholebody_pt-aic-coco_270e-384x288-eaeb96c8_20230125.pth"),
	RTMPoseCocktail14: rtmpose(RTMPoseCocktail14,
		"rtmw-l_8xb320-270e_cocktail14-384x288",
		"rtmw-dw-x-l_simcc-cocktail14_270e-384x288-20231122.pth"),
}

// LookupMethod returns the table entry for name.
func LookupMethod(name string) (Method, error) {
	m, ok := methods[name]
	if !ok {
		return Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}

// MethodNames lists the supported methods, sorted.
func MethodNames() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithOverrides replaces the config and/or checkpoint path when non-empty.
// Absolute overrides are kept as-is by Resolve.
func (m Method) WithOverrides(config, checkpoint string) Method {
	if config != "" {
		m.Config = config
	}
	if checkpoint != "" {
		m.Checkpoint = checkpoint
	}
	return m
}

// Paths joins the method's relative paths onto dataDir without touching the filesystem.
func (m Method) Paths(dataDir string) (config, checkpoint string) {
	config, checkpoint = m.Config, m.Checkpoint
	if !filepath.IsAbs(config) {
		config = filepath.Join(dataDir, config)
	}
	if !filepath.IsAbs(checkpoint) {
		checkpoint = filepath.Join(dataDir, checkpoint)
	}
	return config, checkpoint
}

// Resolve joins the method's paths onto dataDir and checks both files exist.
func (m Method) Resolve(dataDir string) (config, checkpoint string, err error) {
	config, checkpoint = m.Paths(dataDir)
	for _, p := range []string{config, checkpoint} {
		if _, err := os.Stat(p); err != nil {
			return "", "", fmt.Errorf("model files for %s are not available: %w", m.Name, err)
		}
	}
	return config, checkpoint, nil
}
