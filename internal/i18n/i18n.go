package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Supported lists the response languages; the first is the fallback.
var Supported = []language.Tag{language.English, language.Arabic}

var matcher = language.NewMatcher(Supported)

type entry struct {
	en string
	ar string
}

var catalog = map[string]entry{
	"wallet.created":          {"Wallet created", "تم إنشاء المحفظة"},
	"wallet.fetched":          {"Wallet retrieved", "تم جلب المحفظة"},
	"transactions.listed":     {"Transactions retrieved", "تم جلب المعاملات"},
	"deposit.initiated":       {"Deposit initiated, complete the payment to credit your wallet", "تم بدء الإيداع، أكمل الدفع لإضافة الرصيد"},
	"withdrawal.initiated":    {"Withdrawal initiated", "تم بدء السحب"},
	"payout.initiated":        {"Payout initiated", "تم بدء صرف المستحقات"},
	"transaction.fetched":     {"Transaction status retrieved", "تم جلب حالة المعاملة"},
	"transaction.reconciled":  {"Transaction reconciled", "تمت مطابقة المعاملة"},
	"refund.initiated":        {"Refund initiated", "تم بدء الاسترداد"},
	"providers.listed":        {"Payment providers retrieved", "تم جلب مزودي الدفع"},
	"providers.updated":       {"Default payment provider updated", "تم تحديث مزود الدفع الافتراضي"},
	"stats.fetched":           {"Statistics retrieved", "تم جلب الإحصائيات"},
	"notifications.listed":    {"Notifications retrieved", "تم جلب الإشعارات"},
	"notification.read":       {"Notification marked as read", "تم تعليم الإشعار كمقروء"},
	"fcm.registered":          {"Push token registered", "تم تسجيل رمز الإشعارات"},
	"webhook.received":        {"Received", "تم الاستلام"},
	"health.ok":               {"OK", "يعمل"},
	"error.validation":        {"Invalid request: %s", "طلب غير صالح: %s"},
	"error.not_found":         {"%s", "%s"},
	"error.wallet_exists":     {"A wallet already exists for this user", "توجد محفظة لهذا المستخدم بالفعل"},
	"error.insufficient":      {"Insufficient balance", "الرصيد غير كاف"},
	"error.remote_funds":      {"The payment provider has insufficient funds for this payout", "رصيد مزود الدفع غير كاف لهذا الصرف"},
	"error.forbidden":         {"You are not allowed to perform this action", "غير مسموح لك بتنفيذ هذا الإجراء"},
	"error.unauthorized":      {"Authentication required", "مطلوب تسجيل الدخول"},
	"error.provider":          {"Payment provider error: %s", "خطأ من مزود الدفع: %s"},
	"error.unsupported":       {"The selected payment provider does not support this operation", "مزود الدفع المحدد لا يدعم هذه العملية"},
	"error.timeout":           {"The payment provider did not respond in time; the transaction is pending", "لم يستجب مزود الدفع في الوقت المحدد؛ المعاملة معلقة"},
	"error.not_reconcilable":  {"This transaction cannot be reconciled", "لا يمكن مطابقة هذه المعاملة"},
	"error.rate_limited":      {"Too many requests", "طلبات كثيرة جدا"},
	"error.internal":          {"Something went wrong", "حدث خطأ ما"},
	"error.invalid_signature": {"Invalid signature", "توقيع غير صالح"},
	"error.unknown_provider":  {"Unknown payment provider", "مزود دفع غير معروف"},

	"notify.deposit.completed":    {"Your deposit of %s %s was added to your wallet", "تمت إضافة إيداعك بقيمة %s %s إلى محفظتك"},
	"notify.deposit.failed":       {"Your deposit of %s %s failed", "فشل إيداعك بقيمة %s %s"},
	"notify.withdrawal.completed": {"Your withdrawal of %s %s was sent", "تم إرسال سحبك بقيمة %s %s"},
	"notify.withdrawal.failed":    {"Your withdrawal of %s %s failed; the funds are available again", "فشل سحبك بقيمة %s %s؛ الرصيد متاح مرة أخرى"},
	"notify.payout.completed":     {"Your payout of %s %s was sent", "تم إرسال مستحقاتك بقيمة %s %s"},
	"notify.payout.failed":        {"Your payout of %s %s failed", "فشل صرف مستحقاتك بقيمة %s %s"},
	"notify.refund.completed":     {"A refund of %s %s was issued", "تم رد مبلغ %s %s"},
	"notify.refund.failed":        {"A refund of %s %s failed", "فشل رد مبلغ %s %s"},
	"notify.title.wallet":         {"Wallet", "المحفظة"},
	"notify.title.payout":         {"Payout", "المستحقات"},
}

func init() {
	for key, e := range catalog {
		_ = message.SetString(language.English, key, e.en)
		_ = message.SetString(language.Arabic, key, e.ar)
	}
}

// Match picks the best supported language for an Accept-Language header.
func Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Supported[0]
	}
	return Supported[idx]
}

// T renders key in tag. Unknown keys render as themselves.
func T(tag language.Tag, key string, args ...interface{}) string {
	return message.NewPrinter(tag).Sprintf(key, args...)
}
