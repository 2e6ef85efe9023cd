// Package chunker 将提取出的文档文本切分为适合向量化的定长分块。
package chunker

import "strings"

// Split 按单词数切分文本。除最后一块外，每块恰好包含 maxWords 个单词，
// 单词之间以单个空格连接；最后一块保存余数，可能更短但不为空。
// 空输入返回 nil；maxWords <= 0 时同样返回 nil。
// 不做句子或段落感知，分块之间无重叠。
func Split(text string, maxWords int) []string {
	if maxWords <= 0 {
		return nil
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(words)+maxWords-1)/maxWords)
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
