package response

import (
	"marketplace/internal/i18n"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
}

const langKey = "lang"

// Locale stores the request language for Message.
func Locale() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(langKey, i18n.Match(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// Lang returns the negotiated language, English when Locale did not run.
func Lang(c *gin.Context) language.Tag {
	if v, ok := c.Get(langKey); ok {
		if tag, ok := v.(language.Tag); ok {
			return tag
		}
	}
	return i18n.Supported[0]
}

// Message localizes key for the request.
func Message(c *gin.Context, key string, args ...interface{}) string {
	return i18n.T(Lang(c), key, args...)
}

func Success(c *gin.Context, code int, key string, data interface{}) {
	c.JSON(code, Envelope{Status: true, Message: Message(c, key), Code: code, Data: data})
}

// Fail writes an error envelope with data null.
func Fail(c *gin.Context, code int, key string, args ...interface{}) {
	c.JSON(code, Envelope{Status: false, Message: Message(c, key, args...), Code: code, Data: nil})
}

// Abort is Fail for middleware: it also stops the handler chain.
func Abort(c *gin.Context, code int, key string, args ...interface{}) {
	c.AbortWithStatusJSON(code, Envelope{Status: false, Message: Message(c, key, args...), Code: code, Data: nil})
}
