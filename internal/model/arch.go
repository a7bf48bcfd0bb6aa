// Package model builds the classifier networks from architecture
// hyperparameters and a quantization configuration.
package model

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownArch is returned for architecture names the builder does not
// recognize.
var ErrUnknownArch = errors.New("unknown architecture")

// ErrUnknownDataset is returned for dataset names outside the recognized
// set (cifar10, cifar100, imagenet).
var ErrUnknownDataset = errors.New("unknown dataset")

// ArchName derives the display identifier for an architecture config.
//
//   - depth-parameterized families get a "-<layers>" suffix: resnet-50
//   - mobilenetv2 gets an "x<width_mult>" suffix only when the multiplier
//     deviates from 1.0: mobilenetv2x0.5
func ArchName(arch string, layers int, widthMult float64) (string, error) {
	switch arch {
	case "resnet", "preactresnet":
		return fmt.Sprintf("%s-%d", arch, layers), nil
	case "mobilenetv2":
		if widthMult != 1.0 {
			return arch + "x" + strconv.FormatFloat(widthMult, 'g', -1, 64), nil
		}
		return arch, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownArch, arch)
	}
}
