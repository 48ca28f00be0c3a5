package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioInfo 存储录音信息
type AudioInfo struct {
	Duration   float64 `json:"duration"` // 时长（秒）
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	Format     string  `json:"format"`
	Size       int64   `json:"size"`
}

// GetAudioInfo 使用ffmpeg-go库获取录音信息
func GetAudioInfo(audioPath string) (*AudioInfo, error) {
	fileInfo, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	jsonOutput, err := ffmpeg.Probe(audioPath)
	if err != nil {
		return nil, fmt.Errorf("probe audio: %w", err)
	}

	var result struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
			Format   string `json:"format_name"`
		} `json:"format"`
	}

	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	info := &AudioInfo{Format: "unknown"}
	for _, stream := range result.Streams {
		if stream.CodecType == "audio" {
			info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
			info.Channels = stream.Channels
			break
		}
	}

	// webm 录音经常没有 duration，返回 0 由调用方兜底
	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	size, err := strconv.ParseInt(result.Format.Size, 10, 64)
	if err != nil {
		size = fileInfo.Size()
	}
	info.Size = size

	if len(result.Format.Format) > 0 {
		info.Format = strings.Split(result.Format.Format, ",")[0]
	}

	return info, nil
}

// NormalizeAudio 转为 16kHz 单声道 wav，供特征提取服务使用
func NormalizeAudio(srcPath, dstPath string) error {
	return ffmpeg.Input(srcPath).
		Output(dstPath, ffmpeg.KwArgs{
			"ar": "16000",
			"ac": "1",
			"f":  "wav",
		}).
		OverWriteOutput().
		Run()
}

// FFmpegVersion 返回 ffmpeg -version 的首行。ffmpeg-go 不提供版本查询，这里直接执行命令
func FFmpegVersion(ctx context.Context) (string, error) {
	var out, errOut bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg", "-version", "-hide_banner")
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg unavailable: %v %s", err, strings.TrimSpace(errOut.String()))
	}
	return strings.TrimSpace(strings.SplitN(out.String(), "\n", 2)[0]), nil
}
