package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// hashBufferSize 流式读取缓冲区大小
const hashBufferSize = 64 * 1024

// FileProgress 文件处理进度
type FileProgress struct {
	// Loaded 已处理字节数
	Loaded int64
	// Total 总字节数
	Total int64
	// Percentage 进度百分比（0-100）
	Percentage int
}

// HashFile 流式计算文件的 SHA-256（支持大文件）
//
// 示例：
//
//	sum, err := HashFile("large_file.bin", func(p FileProgress) {
//	    fmt.Printf("Progress: %d%%\n", p.Percentage)
//	})
func HashFile(filePath string, onProgress func(FileProgress)) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file failed: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("get file info failed: %w", err)
	}

	h := sha256.New()
	var w io.Writer = h
	if onProgress != nil {
		w = &progressWriter{w: h, total: fileInfo.Size(), onProgress: onProgress}
	}
	if _, err := io.CopyBuffer(w, file, make([]byte, hashBufferSize)); err != nil {
		return nil, fmt.Errorf("read file failed: %w", err)
	}
	return h.Sum(nil), nil
}

// progressWriter 写入时回调进度
type progressWriter struct {
	w          io.Writer
	loaded     int64
	total      int64
	onProgress func(FileProgress)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.loaded += int64(n)

	percentage := 100
	if p.total > 0 {
		percentage = int(p.loaded * 100 / p.total)
	}
	p.onProgress(FileProgress{Loaded: p.loaded, Total: p.total, Percentage: percentage})
	return n, err
}
