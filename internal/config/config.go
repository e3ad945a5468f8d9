package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models suratline.yml: the office catalogs the workflow reads.
type Config struct {
	Office struct {
		Name         string `yaml:"name" json:"name"`
		ClericalUnit string `yaml:"clerical_unit" json:"clerical_unit"`
	} `yaml:"office" json:"office"`
	Services  []ServiceType `yaml:"services" json:"services"`
	Checklist struct {
		Items []string `yaml:"items" json:"items"`
	} `yaml:"checklist" json:"checklist"`
	Disposition struct {
		Nature  []string `yaml:"nature" json:"nature"`
		Urgency []string `yaml:"urgency" json:"urgency"`
	} `yaml:"disposition" json:"disposition"`
	Directory struct {
		Coordinators []string `yaml:"coordinators" json:"coordinators"`
		Staff        []string `yaml:"staff" json:"staff"`
	} `yaml:"directory" json:"directory"`
	Notify NotifyConfig `yaml:"notify" json:"notify"`
}

// ServiceType is one "layanan" and the documents it requires.
type ServiceType struct {
	Name      string   `yaml:"name" json:"name"`
	Documents []string `yaml:"documents,omitempty" json:"documents,omitempty"`
}

type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
	NSQ      *NSQConfig      `yaml:"nsq,omitempty" json:"nsq,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

type NSQConfig struct {
	Addr   string   `yaml:"addr" json:"addr"`
	Topic  string   `yaml:"topic" json:"topic"`
	Events []string `yaml:"events,omitempty" json:"events,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Office.ClericalUnit) == "" {
		return fmt.Errorf("config.office.clerical_unit is required")
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("config.services is required")
	}
	seen := map[string]bool{}
	for i, svc := range c.Services {
		if strings.TrimSpace(svc.Name) == "" {
			return fmt.Errorf("config.services[%d] has empty name", i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("service %s defined twice", svc.Name)
		}
		seen[svc.Name] = true
		for _, doc := range svc.Documents {
			if strings.TrimSpace(doc) == "" {
				return fmt.Errorf("service %s has empty document label", svc.Name)
			}
		}
	}
	if len(c.Checklist.Items) == 0 {
		return fmt.Errorf("config.checklist.items is required")
	}
	for _, item := range c.Checklist.Items {
		if strings.TrimSpace(item) == "" {
			return fmt.Errorf("config.checklist.items has empty item")
		}
	}
	for i, hook := range c.Notify.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notify.webhooks[%d].url is required", i)
		}
	}
	if c.Notify.NSQ != nil {
		if c.Notify.NSQ.Addr == "" || c.Notify.NSQ.Topic == "" {
			return fmt.Errorf("config.notify.nsq requires addr and topic")
		}
	}
	return nil
}

// Service looks up a service type by name.
func (c *Config) Service(name string) (ServiceType, bool) {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceType{}, false
}

// RequiredDocuments returns the documents a service type needs. Unknown
// services need none.
func (c *Config) RequiredDocuments(service string) []string {
	svc, ok := c.Service(service)
	if !ok {
		return nil
	}
	return svc.Documents
}

func (c *Config) IsChecklistItem(item string) bool {
	for _, it := range c.Checklist.Items {
		if it == item {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "suratline.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in catalog.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `office:
  name: Biro SDM dan Organisasi
  clerical_unit: Bagian TU

services:
  - name: Layanan Perpanjangan Hubungan Kerja PPPK
    documents:
      - SK PPPK
      - Perjanjian Kerja PPPK
      - SKP 1 tahun terakhir
      - Surat Pertimbangan Perpanjangan dari Unit Kerja
  - name: Layanan Pemutusan Hubungan Kerja PPPK
    documents:
      - SK Pengangkatan PPPK
      - Perjanjian Kerja PPPK
      - SKP 1 tahun terakhir
      - Surat pernyataan (disiplin & pidana)
      - Dokumen tambahan sesuai alasan
  - name: Layanan Peninjauan Masa Kerja PNS
    documents:
      - Surat usul Kabag TU/KSBTU
      - SK CPNS
      - SK PNS
      - SK Pangkat terakhir
      - SK kontrak/angkat
      - Paklaring
      - Slip gaji/pengalaman kerja
      - Ijazah saat melamar
  - name: Layanan Pengangkatan PNS
    documents:
      - SK CPNS
      - SK PNS
      - SK Pangkat terakhir
      - Ijazah & transkrip
      - DRH
      - Rekomendasi teknis
  - name: Layanan Pemensiunan dan Pemberhentian PNS
    documents:
      - SK CPNS
      - SK PNS
      - SK Pangkat terakhir
      - SKP terakhir
      - Surat permohonan & persetujuan atasan
      - Dokumen pensiun (format BKN)
      - Surat bebas tanggungan
  - name: Layanan Penerbitan SK Tugas Belajar
    documents:
      - Surat usulan
      - SK CPNS
      - SK PNS
      - SK Pangkat & Jabatan terakhir
      - SKP 2 tahun terakhir
      - Ijazah & transkrip
      - Akreditasi prodi
      - Surat penerimaan kampus/sponsor
      - Perjanjian belajar
  - name: Layanan Kenaikan Pangkat
    documents:
      - Surat usul unit
      - SK CPNS
      - SK PNS
      - SK Pangkat terakhir
      - SKP 2 tahun terakhir
      - Ijazah (untuk penyesuaian)
      - Daftar riwayat hidup
      - Dokumen sesuai jenis KP
  - name: Layanan Uji Kompetensi dan Perpindahan Jabatan Fungsional
  - name: Layanan Penerbitan Rekomendasi Jabatan Fungsional Binaan KLH/BPLH
  - name: Layanan Kenaikan Jenjang Jabatan Fungsional
  - name: Layanan Pengangkatan Kembali ke dalam Jabatan Fungsional
  - name: Layanan Perpindahan Kelas Jabatan Pelaksana
  - name: Layanan Pencantuman Gelar
  - name: Layanan Mutasi/Alih Tugas Lingkup KLH/BPLH
  - name: Layanan Penugasan PNS pada Instansi Pemerintah dan di Luar Instansi
  - name: Layanan Izin untuk Melakukan Perceraian PNS
  - name: Layanan Fasilitasi Penganugerahan Tanda Kehormatan oleh Presiden
  - name: Layanan Cuti di Luar Tanggungan Negara (CLTN)
  - name: Layanan Kartu Istri/Kartu Suami
  - name: Layanan Permintaan Data Kepegawaian SIMPEG
  - name: Layanan Ralat Nama/NIP pada Aplikasi SIMPEG/SIASN
  - name: Layanan Pelatihan Kepemimpinan
  - name: Layanan Pengelolaan LHKPN
  - name: Layanan Sosialisasi Kebijakan Bidang SDM dan Organisasi
  - name: Layanan Perpindahan Jabatan
  - name: Layanan Pemberhentian Jabatan Fungsional
  - name: Layanan Permohonan Pengambilan Sumpah PNS untuk Koordinator UPT
  - name: Layanan Pelantikan Jabatan Fungsional

checklist:
  items:
    - Jadwalkan/Agendakan
    - Bahas dengan saya
    - Untuk ditindaklanjuti
    - Untuk diketahui
    - Untuk dipelajari
    - Untuk diarsipkan
    - Koordinasi dengan unit lain
    - Perlu persetujuan atasan
    - Siapkan konsep jawaban
    - Lainnya

disposition:
  nature: [Biasa, Penting, Rahasia]
  urgency: [Biasa, Segera, Kilat]

directory:
  coordinators:
    - Suwarti, S.H
    - Achamd Evianto
    - Adi Sulaksono
    - Yosi Yosandi
  staff:
    - Budi Santoso
    - Sari Wijaya
    - Ahmad Fauzi
    - Dewi Kartika
    - Eko Prasetyo
    - Fitri Handayani
    - Gunawan Susilo
    - Hesti Purnama
    - Indra Kurniawan
    - Joko Widodo
    - Kartika Sari
    - Lestari Wulan
    - Muhammad Ridwan
    - Nina Safitri
    - Oka Mahendra
    - Puteri Salmah
    - Qori Rahman
    - Rita Marlina
    - Slamet Riyadi
    - Tuti Handayani
    - Umar Bakri
    - Vina Melati
    - Wahyu Nugroho
    - Yanti Kusuma
`
