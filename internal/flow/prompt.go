package flow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lexdraft/lexdraft/internal/models"
)

// Canned Turkish responses for turns that need no main completion.
const (
	greetingResponse = "Merhaba! Size nasıl yardımcı olabilirim? Hukuki bir belge oluşturmak mı istersiniz, yoksa başka bir sorunuz mu var?"

	clarifyIntentResponse = "Ne yapmak istediğinizi tam olarak anlayamadım. Belirli bir hukuki belge mi oluşturmak istiyorsunuz, yoksa genel bir sorunuz mu var?"

	defaultResetResponse = "Nasıl yardımcı olabilirim? Yeni bir belge oluşturmak isterseniz belirtmeniz yeterli."

	clarifyFieldResponse = "Anlayamadım, verdiğiniz bilgiyi tekrar açıklayabilir misiniz?"
)

// templateMissingResponse is returned when a document type resolves but no
// template exists for it; the flow continues with an empty field set.
func templateMissingResponse(documentType string) string {
	return fmt.Sprintf("%q için bir şablon bulamadım ama isterseniz genel bilgilerle devam edebiliriz. Hangi bilgileri eklememi istersiniz?", documentType)
}

// missingFieldQuestion asks for the first still-missing required field after
// a downgraded done decision.
func missingFieldQuestion(field models.TemplateField) string {
	return fmt.Sprintf("Devam edebilmemiz için %q bilgisine ihtiyacım var. Bu bilgiyi paylaşabilir misiniz?", field.Label)
}

// legalAssistantSystemPrompt steers idle-state question answering.
const legalAssistantSystemPrompt = "Sen Türkiye hukuku konusunda uzmanlaşmış, genel soruları yanıtlayan bir yapay zeka asistanısın. " +
	"Kesinlikle yasal tavsiye vermemelisin; yalnızca bilgilendirme amaçlı yanıtlar üret. " +
	"Cevabını bilmediğin veya yasal tavsiye niteliğindeki sorularda bunu açıkça belirt ve bir avukata danışılmasını öner."

// buildIntentPrompt produces the idle-state intent classification prompt.
func buildIntentPrompt(userInput string) string {
	return fmt.Sprintf(`Kullanıcı mesajını analiz et: %q
Bu mesajın temel amacı nedir? Aşağıdaki JSON formatında cevap ver:
{
  "intent": "<intent>", // Olası değerler: "question", "create_document", "greeting", "unknown", "clarify_document"
  "documentType": "<document_type>" // Eğer intent "create_document" ise tahmin edilen belge türü kimliği (örn: "kira_sozlesmesi", "ihtarname"). Diğer durumlarda null.
}`, userInput)
}

// buildFirstQuestionPrompt asks the model for the opening question of a
// collection flow.
func buildFirstQuestionPrompt(tmpl *models.DocumentTemplate) string {
	var labels []string
	for _, f := range tmpl.Fields {
		label := f.Label
		if f.Required {
			label += " (Zorunlu)"
		}
		labels = append(labels, label)
	}
	labelsJSON, _ := json.Marshal(labels)
	return fmt.Sprintf(`Bir %q belgesi oluşturmaya yardımcı oluyorum.
Bu belge için gerekli bilgiler şunlardır: %s.
Kullanıcıdan bilgi toplamaya başlamak için sormam gereken ilk uygun soruyu oluştur.
Yanıtın SADECE sorunun metni olmalı, başka hiçbir şey içermemeli. Örneğin: "Kiracının adı ve soyadı nedir?"`, tmpl.Name, labelsJSON)
}

// buildExtractionPrompt produces the collecting-state extraction prompt. The
// model returns a full replacement snapshot of the collected data, not a diff.
func buildExtractionPrompt(tmpl *models.DocumentTemplate, documentType string, collected map[string]string, userInput string) string {
	fieldsDescription := "(Şablon bulunamadı, genel bilgiler toplanıyor)"
	documentName := documentType
	if tmpl != nil {
		type fieldDesc struct {
			Key      string `json:"key"`
			Label    string `json:"label"`
			Type     string `json:"type"`
			Required bool   `json:"required"`
		}
		var descs []fieldDesc
		for _, f := range tmpl.Fields {
			descs = append(descs, fieldDesc{Key: f.Key, Label: f.Label, Type: f.Type, Required: f.Required})
		}
		b, _ := json.Marshal(descs)
		fieldsDescription = string(b)
		documentName = tmpl.Name
	}
	collectedJSON, _ := json.Marshal(collected)

	return fmt.Sprintf(`Sen bir hukuki belge için bilgi toplayan asistansın.
Belge Türü/Adı: %s
Gerekli Alanlar (varsa): %s
Şu Ana Kadar Toplananlar (key: value): %s
Kullanıcının Son Cevabı/Açıklaması: %q
Görev: Kullanıcının cevabından ilgili bilgileri çıkar ve mevcut bilgileri JSON formatında güncelle. Tarih alanları için GG.AA.YYYY formatını kullan (örn: 01.05.2023), sayılar için ondalık ayracı olarak nokta kullan. Eğer şablondan gelen zorunlu alanlar varsa ve hepsi toplandıysa 'done' durumunu, eksik varsa bir sonraki mantıklı soruyu sorarak 'continue' durumunu, cevap anlaşılamazsa 'clarify' durumunu JSON olarak döndür. Eğer şablon yoksa, kullanıcı yeterli bilgi verdiğini düşünüyorsa 'done', daha fazla bilgi eklemek isterse 'continue' durumunu döndür.
JSON Formatları:
{"status": "done", "updatedData": {...}}
{"status": "continue", "updatedData": {...}, "nextQuestion": "..."}
{"status": "clarify", "updatedData": %s, "nextQuestion": "Anlayamadım, ... ile ilgili bilgiyi tekrar verebilir misiniz?"}`,
		documentName, fieldsDescription, collectedJSON, userInput, collectedJSON)
}

// buildConfirmationSummaryPrompt asks the model to summarize the collected
// data and request the user's approval.
func buildConfirmationSummaryPrompt(tmpl *models.DocumentTemplate, documentType string, collected map[string]string) string {
	documentName := documentType
	if tmpl != nil {
		documentName = tmpl.Name
	}
	var lines []string
	for _, key := range sortedKeys(collected) {
		label := key
		if tmpl != nil {
			if f, ok := tmpl.FieldByKey(key); ok {
				label = f.Label
			}
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", label, collected[key]))
	}
	return fmt.Sprintf(`%q için şu bilgiler toplandı:
%s
Kullanıcıya bu bilgileri özetle ve doğruluğunu sor. Eksik veya yanlış varsa belirtmesini iste.`, documentName, strings.Join(lines, "\n"))
}

// BuildConfirmationSystemPrompt is the main-completion instruction for the
// awaitingConfirmation state. It encodes the marker contract: the parser in
// metadata.go depends on the model reproducing MetadataMarker verbatim, so
// this text and ParseReply form one contract, not two.
func BuildConfirmationSystemPrompt(tmpl *models.DocumentTemplate, documentType string, collected map[string]string) string {
	documentName := documentType
	if tmpl != nil {
		documentName = tmpl.Name
	}
	var lines []string
	for _, key := range sortedKeys(collected) {
		label := key
		if tmpl != nil {
			if f, ok := tmpl.FieldByKey(key); ok {
				label = f.Label
			}
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", label, key, collected[key]))
	}

	return fmt.Sprintf(`Sen Türkiye'deki hukuki süreçler konusunda uzmanlaşmış bir belge asistanısın. Bir %q belgesi için gerekli bilgiler toplandı ve kullanıcının onayı bekleniyor.

Toplanan bilgiler:
%s

Kullanıcının son mesajına göre davran:
1. Kullanıcı bilgileri ONAYLARSA: belgenin tam metnini resmi ve hukuki bir dille oluştur. Belge metnini MUTLAKA şu blok içine al:
%s
[BELGE METNİ]
%s
Belge bloğundan önce kısa bir giriş cümlesi yazabilirsin.
2. Kullanıcı DEĞİŞİKLİK isterse: hangi bilgiyi değiştirmek istediğini sor ve belge üretme.
3. Mesaj anlaşılamazsa: bilgileri onaylamak mı yoksa düzeltmek mi istediğini nazikçe sor.

Yanıtının EN SONUNA, her durumda, tam olarak şu işaretçiyi ve ardından tek bir JSON nesnesini ekle:
%s{"isAskingQuestion": <bool>, "nextStatus": "<durum>", "updatedCollectedData": {...}, "documentType": %q}
nextStatus değerleri: onayda "generating", değişiklik isteğinde "collectingInfo", diğer durumlarda "awaitingConfirmation".
updatedCollectedData her zaman güncel verilerin TAMAMINI içermeli. İşaretçiden sonra başka hiçbir şey yazma.`,
		documentName, strings.Join(lines, "\n"),
		documentFenceOpen, documentFenceClose,
		MetadataMarker, documentType)
}

// buildDocumentPrompts produces the system and user prompts for standalone
// document text generation from collected data.
func buildDocumentPrompts(documentName string, data map[string]string) (systemPrompt, userPrompt string) {
	var lines []string
	for _, key := range sortedKeys(data) {
		lines = append(lines, fmt.Sprintf("- %s: %s", key, data[key]))
	}
	systemPrompt = "Sen Türkiye'deki hukuki süreçler konusunda uzmanlaşmış bir yapay zeka asistanısın. " +
		"Görevin, sana verilen bilgilerle belirli bir tür hukuki belge metnini sıfırdan hazırlamaktır. " +
		"Çıktın SADECE belgenin kendisi olmalı, herhangi bir ek açıklama, selamlama, başlık veya sonuç paragrafı İÇERMEMELİDİR. " +
		"Kullanılan dil resmi ve hukuki terminolojiye uygun olmalıdır. Türkçe karakterleri doğru kullanmaya özen göster."
	userPrompt = fmt.Sprintf(`Aşağıdaki detayları kullanarak bir '%s' oluşturmanı istiyorum:

### Sağlanan Bilgiler:
%s

### Talimatlar:
1. Yukarıdaki bilgileri kullanarak istenen '%s' belgesinin tam ve eksiksiz metnini oluştur.
2. Kesinlikle belge metni dışında HİÇBİR ŞEY yazma.
3. Resmi ve hukuki bir dil kullan.
4. Belge türüne uygun tüm standart maddeleri (taraflar, konu, tarihler, imzalar için yerler vb.) eklediğinden emin ol.`,
		documentName, strings.Join(lines, "\n"), documentName)
	return systemPrompt, userPrompt
}

// summarizationSystemPrompt biases the compaction call toward factual
// compression.
const summarizationSystemPrompt = "Konuşma geçmişini özetleyen bir asistansın. " +
	"Kullanıcının verdiği tüm somut bilgileri (isimler, tarihler, tutarlar, belge türü, onaylanan veriler) koruyarak kısa ve olgusal bir özet çıkar. Yorum ekleme."

// summaryPrefix introduces the synthetic system turn produced by compaction.
const summaryPrefix = "Önceki konuşmanın özeti: "

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
