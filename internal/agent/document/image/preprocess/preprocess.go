// Package preprocess cleans up scans before they reach the local OCR engine.
package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Step 图像预处理步骤
type Step interface {
	Process(img image.Image) (image.Image, error)
}

// StepFunc adapts a function to Step.
type StepFunc func(img image.Image) (image.Image, error)

func (f StepFunc) Process(img image.Image) (image.Image, error) { return f(img) }

// Config 预处理参数
type Config struct {
	MinWidth          int     `yaml:"minWidth"`
	Denoise           bool    `yaml:"denoise"`
	DenoiseStrength   float64 `yaml:"denoiseStrength"`
	ContrastNormalize bool    `yaml:"contrastNormalize"`
	Contrast          float64 `yaml:"contrast"`
	Binarize          bool    `yaml:"binarize"`
	AdaptiveBlockSize int     `yaml:"adaptiveBlockSize"`
	AdaptiveConstant  float64 `yaml:"adaptiveConstant"`
	Sharpen           bool    `yaml:"sharpen"`
	SharpenStrength   float64 `yaml:"sharpenStrength"`
}

func DefaultConfig() Config {
	return Config{
		MinWidth:          1000,
		Denoise:           true,
		DenoiseStrength:   0.5,
		ContrastNormalize: true,
		Contrast:          20,
		Binarize:          true,
		AdaptiveBlockSize: 11,
		AdaptiveConstant:  2,
		Sharpen:           true,
		SharpenStrength:   0.5,
	}
}

// Pipeline 按顺序执行的预处理步骤
type Pipeline []Step

// NewPipeline builds the enabled steps in a fixed order: upscale, grayscale, denoise,
// contrast, threshold, sharpen.
func NewPipeline(cfg Config) Pipeline {
	p := Pipeline{}
	if cfg.MinWidth > 0 {
		p = append(p, Upscale(cfg.MinWidth))
	}
	p = append(p, Grayscale())
	if cfg.Denoise {
		p = append(p, Denoise(cfg.DenoiseStrength))
	}
	if cfg.ContrastNormalize {
		p = append(p, Contrast(cfg.Contrast))
	}
	if cfg.Binarize {
		p = append(p, AdaptiveThreshold(cfg.AdaptiveBlockSize, cfg.AdaptiveConstant))
	}
	if cfg.Sharpen {
		p = append(p, Sharpen(cfg.SharpenStrength))
	}
	return p
}

func (p Pipeline) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	var err error
	for i, step := range p {
		img, err = step.Process(img)
		if err != nil {
			return nil, fmt.Errorf("preprocessing step %d: %w", i, err)
		}
		if img == nil {
			return nil, fmt.Errorf("preprocessing step %d returned nil image", i)
		}
	}
	return img, nil
}

// Upscale 放大过小的图像, Tesseract 在小字号上识别率很低
func Upscale(minWidth int) Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		if img.Bounds().Dx() >= minWidth {
			return img, nil
		}
		return imaging.Resize(img, minWidth, 0, imaging.Lanczos), nil
	})
}

func Grayscale() Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		return imaging.Grayscale(img), nil
	})
}

// Denoise 使用高斯模糊进行降噪
func Denoise(sigma float64) Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		return imaging.Blur(img, sigma), nil
	})
}

func Contrast(percent float64) Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		return imaging.AdjustContrast(img, percent), nil
	})
}

func Sharpen(sigma float64) Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		return imaging.Sharpen(img, sigma), nil
	})
}

// AdaptiveThreshold 自适应二值化: 像素比局部均值暗 constant 以上则为黑
// 局部均值用积分图计算
func AdaptiveThreshold(blockSize int, constant float64) Step {
	if blockSize < 3 {
		blockSize = 3
	}
	half := blockSize / 2

	return StepFunc(func(img image.Image) (image.Image, error) {
		gray := imaging.Grayscale(img)
		b := gray.Bounds()
		w, h := b.Dx(), b.Dy()

		lum := make([]uint8, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				lum[y*w+x] = gray.Pix[y*gray.Stride+x*4]
			}
		}

		// integral[(y+1)*(w+1)+(x+1)] = sum of lum over [0,x]×[0,y]
		integral := make([]int64, (w+1)*(h+1))
		for y := 0; y < h; y++ {
			var row int64
			for x := 0; x < w; x++ {
				row += int64(lum[y*w+x])
				integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
			}
		}

		out := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			y0, y1 := max(0, y-half), min(h-1, y+half)
			for x := 0; x < w; x++ {
				x0, x1 := max(0, x-half), min(w-1, x+half)
				count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
				sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
					integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
				mean := float64(sum) / float64(count)

				if float64(lum[y*w+x]) < mean-constant {
					out.SetGray(x, y, color.Gray{Y: 0})
				} else {
					out.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
		return out, nil
	})
}
