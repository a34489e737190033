package handlers

import (
	"postergen/internal/domain"
	"postergen/internal/middleware"
)

var failureMessages = map[string]map[domain.ErrorKind]string{
	middleware.LocaleEN: {
		domain.KindValidation: "Please choose an image file.",
		domain.KindDecode:     "This photo could not be read. Please try another one.",
		domain.KindTransport:  "Network problem, please try again later.",
		domain.KindProtocol:   "The poster service returned an unexpected response. Please try again later.",
		domain.KindWorkflow:   "Generation failed, please try another photo.",
	},
	middleware.LocaleZH: {
		domain.KindValidation: "请选择图片文件。",
		domain.KindDecode:     "照片无法读取，请更换照片重试。",
		domain.KindTransport:  "网络异常，请稍后重试。",
		domain.KindProtocol:   "海报服务返回异常，请稍后重试。",
		domain.KindWorkflow:   "生成失败，请更换照片重试。",
	},
}

var requestMessages = map[string]map[string]string{
	middleware.LocaleEN: {
		"no_image":          "Please upload a photo first.",
		"busy":              "A poster is already being generated.",
		"unknown_character": "Unknown character.",
	},
	middleware.LocaleZH: {
		"no_image":          "请先上传一张照片。",
		"busy":              "海报正在生成中。",
		"unknown_character": "未知的角色。",
	},
}

// failureMessage renders f for locale. Messages written by the remote
// workflow are shown as they are.
func failureMessage(locale string, f *domain.Failure) string {
	if f == nil {
		return ""
	}
	if f.Remote && f.Message != "" {
		return f.Message
	}
	if msgs, ok := failureMessages[locale]; ok {
		if msg, ok := msgs[f.Kind]; ok {
			return msg
		}
	}
	if msg, ok := failureMessages[middleware.LocaleEN][f.Kind]; ok {
		return msg
	}
	return f.Message
}

func requestMessage(locale, code string) string {
	if msgs, ok := requestMessages[locale]; ok {
		if msg, ok := msgs[code]; ok {
			return msg
		}
	}
	return requestMessages[middleware.LocaleEN][code]
}
